package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/room302studio/coachartie2-sub006/internal/failover"
)

func completionServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req oaiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestCompleteReturnsContent(t *testing.T) {
	srv := completionServer(t, 200, `{
		"id": "cmpl-1",
		"model": "gpt-test",
		"choices": [{"message": {"role": "assistant", "content": "hello there"}}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 3}
	}`)
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "key", "gpt-test")
	resp, err := c.Complete(context.Background(), &CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "hello there" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.InputTokens != 10 || resp.Usage.OutputTokens != 3 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
}

func TestCompleteDefaultModel(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req oaiRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "", "fallback-model")
	if _, err := c.Complete(context.Background(), &CompletionRequest{}); err != nil {
		t.Fatal(err)
	}
	if gotModel != "fallback-model" {
		t.Errorf("model = %q, want fallback-model", gotModel)
	}
}

func TestCompleteNonOKBecomesProviderError(t *testing.T) {
	srv := completionServer(t, 429, `{"error": "slow down"}`)
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "key", "gpt-test")
	_, err := c.Complete(context.Background(), &CompletionRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	pe, ok := err.(*failover.ProviderError)
	if !ok {
		t.Fatalf("error type = %T, want *failover.ProviderError", err)
	}
	if pe.StatusCode != 429 || !pe.Retryable {
		t.Errorf("ProviderError = %+v", pe)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := completionServer(t, 200, `{"choices": []}`)
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "key", "gpt-test")
	if _, err := c.Complete(context.Background(), &CompletionRequest{}); err == nil {
		t.Error("expected error for empty choices")
	}
}
