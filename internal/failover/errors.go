package failover

import "fmt"

// ProviderError is returned by LLM providers for non-2xx responses so the
// classifier can branch on status codes without string matching.
type ProviderError struct {
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.StatusCode, e.Message)
}

func IsRateLimitError(err error) bool {
	if pe, ok := err.(*ProviderError); ok {
		return pe.StatusCode == 429
	}
	return false
}

func IsAuthError(err error) bool {
	if pe, ok := err.(*ProviderError); ok {
		return pe.StatusCode == 401 || pe.StatusCode == 403
	}
	return false
}

func IsBillingError(err error) bool {
	if pe, ok := err.(*ProviderError); ok {
		return pe.StatusCode == 402
	}
	return false
}

func IsServerError(err error) bool {
	if pe, ok := err.(*ProviderError); ok {
		return pe.StatusCode >= 500 && pe.StatusCode < 600
	}
	return false
}

func IsRetryable(err error) bool {
	if pe, ok := err.(*ProviderError); ok {
		return pe.Retryable || pe.StatusCode == 429 || pe.StatusCode == 500 || pe.StatusCode == 503
	}
	return false
}
