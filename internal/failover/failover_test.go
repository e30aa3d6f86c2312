package failover

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyProviderErrors(t *testing.T) {
	tests := []struct {
		status    int
		wantKind  Kind
		retryable bool
	}{
		{402, KindBilling, false},
		{429, KindRateLimit, true},
		{401, KindAuth, false},
		{403, KindAuth, false},
		{500, KindServer, true},
		{503, KindServer, true},
	}
	for _, tt := range tests {
		c := Classify(&ProviderError{StatusCode: tt.status, Message: "x"})
		if c.Kind != tt.wantKind {
			t.Errorf("Classify(status %d).Kind = %s, want %s", tt.status, c.Kind, tt.wantKind)
		}
		if c.Retryable != tt.retryable {
			t.Errorf("Classify(status %d).Retryable = %v, want %v", tt.status, c.Retryable, tt.retryable)
		}
		if c.UserMessage == "" {
			t.Errorf("Classify(status %d) has empty user message", tt.status)
		}
	}
}

func TestClassifyBySubstring(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{errors.New("OUT OF CREDITS: please top up"), KindBilling},
		{errors.New("upstream said: RATE LIMITED"), KindRateLimit},
		{errors.New("AUTH ERROR: invalid key"), KindAuth},
		{errors.New("SERVER ERROR from upstream"), KindServer},
		{errors.New("something exploded"), KindUnknown},
		{fmt.Errorf("completion: %w", errors.New("http 429 too many requests")), KindRateLimit},
	}
	for _, tt := range tests {
		if got := Classify(tt.err).Kind; got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestClassifyNeverLeaksInternals(t *testing.T) {
	c := Classify(errors.New("panic: goroutine 42 [running] stack trace here"))
	if c.Kind != KindUnknown {
		t.Fatalf("Kind = %s, want unknown", c.Kind)
	}
	if c.UserMessage != msgUnknown {
		t.Errorf("user message must be the fixed generic string, got %q", c.UserMessage)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&ProviderError{StatusCode: 429}) {
		t.Error("429 should be retryable")
	}
	if IsRetryable(&ProviderError{StatusCode: 401}) {
		t.Error("401 should not be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("opaque errors are not retryable")
	}
}
