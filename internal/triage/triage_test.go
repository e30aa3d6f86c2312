package triage

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/room302studio/coachartie2-sub006/internal/capability"
	"github.com/room302studio/coachartie2-sub006/internal/provider"
)

type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) Complete(_ context.Context, _ *provider.CompletionRequest) (*provider.CompletionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &provider.CompletionResponse{Content: f.response}, nil
}

func testRegistry(t *testing.T, names ...string) *capability.Registry {
	t.Helper()
	reg := capability.NewRegistry()
	for _, name := range names {
		err := reg.Register(capability.Descriptor{
			Name:             name,
			Description:      "test capability " + name,
			SupportedActions: []string{"run"},
			Handler: func(_ context.Context, _ map[string]any, content string) (string, error) {
				return content, nil
			},
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	return reg
}

func TestSelectParsesNominations(t *testing.T) {
	reg := testRegistry(t, "calculator", "memory", "web")
	llm := &fakeLLM{response: `CAPABILITY: calculator | SCORE: 0.9 | REASON: arithmetic in message
CAPABILITY: web | SCORE: 0.4 | REASON: might need to look something up`}
	s := NewSelector(llm, "cheap-model", reg, nil, zerolog.Nop())

	got := s.SelectRelevantCapabilities(context.Background(), "what is 2+2", "")
	if len(got) != 2 {
		t.Fatalf("selected %d capabilities, want 2", len(got))
	}
	if got[0].Name != "calculator" || got[1].Name != "web" {
		t.Errorf("order = [%s, %s], want calculator first", got[0].Name, got[1].Name)
	}
}

func TestSelectDropsUnknownAndLowScore(t *testing.T) {
	reg := testRegistry(t, "calculator")
	llm := &fakeLLM{response: `CAPABILITY: holodeck | SCORE: 0.95 | REASON: does not exist
CAPABILITY: calculator | SCORE: 0.2 | REASON: below the floor`}
	s := NewSelector(llm, "cheap-model", reg, nil, zerolog.Nop())

	got := s.SelectRelevantCapabilities(context.Background(), "hi", "")
	if len(got) != 0 {
		t.Errorf("selected %d capabilities, want 0", len(got))
	}
}

func TestSelectClampsToTopFive(t *testing.T) {
	reg := testRegistry(t, "a", "b", "c", "d", "e", "f", "g")
	llm := &fakeLLM{response: `CAPABILITY: a | SCORE: 0.9 | REASON: r
CAPABILITY: b | SCORE: 0.8 | REASON: r
CAPABILITY: c | SCORE: 0.7 | REASON: r
CAPABILITY: d | SCORE: 0.6 | REASON: r
CAPABILITY: e | SCORE: 0.5 | REASON: r
CAPABILITY: f | SCORE: 0.4 | REASON: r
CAPABILITY: g | SCORE: 0.35 | REASON: r`}
	s := NewSelector(llm, "cheap-model", reg, nil, zerolog.Nop())

	got := s.SelectRelevantCapabilities(context.Background(), "use everything", "")
	if len(got) != 5 {
		t.Errorf("selected %d capabilities, want clamp at 5", len(got))
	}
}

func TestSelectHandlesNone(t *testing.T) {
	reg := testRegistry(t, "calculator")
	llm := &fakeLLM{response: "NONE"}
	s := NewSelector(llm, "cheap-model", reg, nil, zerolog.Nop())

	got := s.SelectRelevantCapabilities(context.Background(), "how are you?", "")
	if len(got) != 0 {
		t.Errorf("selected %d capabilities, want 0 for NONE", len(got))
	}
}

func TestSelectFailsOpen(t *testing.T) {
	reg := testRegistry(t, "calculator", "memory", "web")
	llm := &fakeLLM{err: errors.New("triage model down")}
	s := NewSelector(llm, "cheap-model", reg, nil, zerolog.Nop())

	got := s.SelectRelevantCapabilities(context.Background(), "anything", "")
	if len(got) != 3 {
		t.Fatalf("selected %d capabilities, want full registry of 3 on failure", len(got))
	}
}

func TestLikelyNeedsCapabilities(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{"how are you today?", false},
		{"good morning!", false},
		{"calculate 123 * 456", true},
		{"what is 17+25", true},
		{"remember that my dog is called Biscuit", true},
		{"search for the weather in Oslo", true},
		{"schedule a check every hour", true},
	}
	for _, tt := range tests {
		if got := LikelyNeedsCapabilities(tt.message); got != tt.want {
			t.Errorf("LikelyNeedsCapabilities(%q) = %v, want %v", tt.message, got, tt.want)
		}
	}
}
