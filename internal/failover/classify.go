package failover

import "strings"

// Kind buckets an orchestration-time failure for user-facing handling.
type Kind string

const (
	KindBilling   Kind = "billing"
	KindRateLimit Kind = "rate_limit"
	KindServer    Kind = "server"
	KindAuth      Kind = "auth"
	KindUnknown   Kind = "unknown"
)

// Classification is the channel-safe rendering of a failure. UserMessage
// never carries stack traces or internal state; diagnostics for unknown
// failures belong in logs only.
type Classification struct {
	Kind        Kind
	UserMessage string
	Retryable   bool
}

const (
	msgBilling   = "I'm out of LLM credits right now. An operator needs to top up the account before I can answer."
	msgRateLimit = "I'm being rate limited by my model provider. Please give me a moment and try again."
	msgServer    = "My model provider is having trouble right now. Please try again in a bit."
	msgAuth      = "My model credentials are misconfigured. An operator needs to fix this before I can answer."
	msgUnknown   = "Something went wrong while I was working on that. Please try again."
)

// Classify maps an orchestration-time error to a user-facing classification.
// Status codes on ProviderError are checked first, then known message
// substrings, then the generic bucket.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: KindUnknown, UserMessage: msgUnknown}
	}

	switch {
	case IsBillingError(err):
		return Classification{Kind: KindBilling, UserMessage: msgBilling}
	case IsRateLimitError(err):
		return Classification{Kind: KindRateLimit, UserMessage: msgRateLimit, Retryable: true}
	case IsAuthError(err):
		return Classification{Kind: KindAuth, UserMessage: msgAuth}
	case IsServerError(err):
		return Classification{Kind: KindServer, UserMessage: msgServer, Retryable: true}
	}

	msg := strings.ToUpper(err.Error())
	switch {
	case strings.Contains(msg, "CREDIT") || strings.Contains(msg, "402") || strings.Contains(msg, "OUT OF CREDITS"):
		return Classification{Kind: KindBilling, UserMessage: msgBilling}
	case strings.Contains(msg, "RATE LIMIT") || strings.Contains(msg, "429"):
		return Classification{Kind: KindRateLimit, UserMessage: msgRateLimit, Retryable: true}
	case strings.Contains(msg, "AUTH ERROR") || strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "UNAUTHORIZED"):
		return Classification{Kind: KindAuth, UserMessage: msgAuth}
	case strings.Contains(msg, "SERVER ERROR") || strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503"):
		return Classification{Kind: KindServer, UserMessage: msgServer, Retryable: true}
	}

	return Classification{Kind: KindUnknown, UserMessage: msgUnknown}
}
