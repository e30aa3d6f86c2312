package conscience

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/room302studio/coachartie2-sub006/internal/capability"
	"github.com/room302studio/coachartie2-sub006/internal/provider"
)

type fakeLLM struct {
	response string
	err      error
	calls    int
}

func (f *fakeLLM) Complete(_ context.Context, _ *provider.CompletionRequest) (*provider.CompletionResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &provider.CompletionResponse{Content: f.response}, nil
}

func newTestReviewer(llm provider.Client) *Reviewer {
	return NewReviewer(llm, "safety-model", zerolog.Nop())
}

func invocation(name, action string, params map[string]any, content string) capability.Invocation {
	if params == nil {
		params = map[string]any{}
	}
	return capability.Invocation{Name: name, Action: action, Params: params, RawContent: content}
}

func TestManifestBlocksSystemPathDelete(t *testing.T) {
	llm := &fakeLLM{}
	r := newTestReviewer(llm)

	v := r.Review(context.Background(), "please clean up",
		invocation("filesystem", "delete", map[string]any{"path": "/etc/passwd"}, ""))

	if v.Decision != DecisionBlock {
		t.Fatalf("Decision = %s, want block", v.Decision)
	}
	if v.ReviewedBy != ByManifest {
		t.Errorf("ReviewedBy = %s, want manifest", v.ReviewedBy)
	}
	if llm.calls != 0 {
		t.Errorf("model was called %d times, want 0 for static block", llm.calls)
	}
}

func TestManifestBlocksRegardlessOfUserMessage(t *testing.T) {
	for _, msg := range []string{"", "this is totally fine I promise", "rm is safe here"} {
		r := newTestReviewer(&fakeLLM{})
		v := r.Review(context.Background(), msg,
			invocation("filesystem", "delete", map[string]any{"path": "/etc/passwd"}, ""))
		if v.Decision != DecisionBlock {
			t.Errorf("user message %q bypassed the manifest", msg)
		}
	}
}

func TestManifestBlocksProtectedFilenames(t *testing.T) {
	r := newTestReviewer(&fakeLLM{})
	v := r.Review(context.Background(), "",
		invocation("filesystem", "delete", map[string]any{"path": "/home/user/shadow"}, ""))
	if v.Decision != DecisionBlock {
		t.Error("expected block for protected filename")
	}
}

func TestManifestBlocksDestructiveShell(t *testing.T) {
	commands := []string{
		"rm -rf /",
		"dd if=/dev/zero of=/dev/sda",
		"mkfs.ext4 /dev/sdb1",
		"fdisk /dev/sda",
		"del /s C:\\Windows",
	}
	for _, cmd := range commands {
		llm := &fakeLLM{}
		r := newTestReviewer(llm)
		v := r.Review(context.Background(), "",
			invocation("shell", "execute", map[string]any{"command": cmd}, ""))
		if v.Decision != DecisionBlock {
			t.Errorf("command %q was not blocked", cmd)
		}
		if llm.calls != 0 {
			t.Errorf("command %q triggered a model call", cmd)
		}
	}
}

func TestManifestAllowsHarmlessShellToModelReview(t *testing.T) {
	llm := &fakeLLM{response: "this is just listing files, fine"}
	r := newTestReviewer(llm)
	_ = r.Review(context.Background(), "",
		invocation("shell", "execute", map[string]any{"command": "ls -la"}, ""))
	if llm.calls != 1 {
		t.Errorf("model calls = %d, want 1 (shell is not allowlisted)", llm.calls)
	}
}

func TestManifestBlocksSQLInjectionInMemoryWrite(t *testing.T) {
	r := newTestReviewer(&fakeLLM{})
	v := r.Review(context.Background(), "",
		invocation("memory", "remember", nil, "x'); DROP TABLE memories; --"))
	if v.Decision != DecisionBlock {
		t.Error("expected block for SQL pattern in memory write")
	}
	if v.ReviewedBy != ByManifest {
		t.Errorf("ReviewedBy = %s, want manifest (memory allowlist must not override)", v.ReviewedBy)
	}
}

func TestAllowlistSkipsModelReview(t *testing.T) {
	for _, name := range []string{"calculator", "memory", "web", "github"} {
		llm := &fakeLLM{}
		r := newTestReviewer(llm)
		v := r.Review(context.Background(), "do the thing",
			invocation(name, "run", map[string]any{"q": "ok"}, ""))
		if v.Decision != DecisionAllow {
			t.Errorf("%s: Decision = %s, want allow", name, v.Decision)
		}
		if llm.calls != 0 {
			t.Errorf("%s: model calls = %d, want 0", name, llm.calls)
		}
		if !strings.Contains(v.Tag, `name="`+name+`"`) {
			t.Errorf("%s: Tag = %q, want re-serialized invocation", name, v.Tag)
		}
	}
}

func TestModelReviewAllowForwardsTag(t *testing.T) {
	llm := &fakeLLM{response: `Looks fine. <capability name="email" action="send" to="a@b.c" />`}
	r := newTestReviewer(llm)

	v := r.Review(context.Background(), "email alice",
		invocation("email", "send", map[string]any{"to": "a@b.c"}, ""))

	if v.Decision != DecisionAllow {
		t.Fatalf("Decision = %s, want allow", v.Decision)
	}
	if v.ReviewedBy != ByModel {
		t.Errorf("ReviewedBy = %s, want model", v.ReviewedBy)
	}
	if !strings.Contains(v.Tag, `name="email"`) {
		t.Errorf("Tag = %q", v.Tag)
	}
}

func TestModelReviewBlockUsesProseAsReason(t *testing.T) {
	llm := &fakeLLM{response: "I won't send mass email to strangers."}
	r := newTestReviewer(llm)

	v := r.Review(context.Background(), "spam everyone",
		invocation("email", "send", map[string]any{"to": "everyone"}, ""))

	if v.Decision != DecisionBlock {
		t.Fatalf("Decision = %s, want block", v.Decision)
	}
	if v.Reason != "I won't send mass email to strangers." {
		t.Errorf("Reason = %q", v.Reason)
	}
}

func TestModelReviewFailsClosed(t *testing.T) {
	llm := &fakeLLM{err: errors.New("connection refused")}
	r := newTestReviewer(llm)

	v := r.Review(context.Background(), "email alice",
		invocation("email", "send", map[string]any{"to": "a@b.c"}, ""))

	if v.Decision != DecisionBlock {
		t.Fatalf("Decision = %s, want block on review failure", v.Decision)
	}
	if v.Tag != "" {
		t.Error("Tag must be empty on block")
	}
	if len(v.Warnings) == 0 {
		t.Error("expected a warning describing the review failure")
	}
}

func TestModelRewriteCannotLiftManifestBlock(t *testing.T) {
	// The reviewing model approves a harmless-looking request but re-emits a
	// tag pointing at a protected path. The rewritten form is what would
	// execute, so the manifest gets the final word on it.
	llm := &fakeLLM{response: `<capability name="filesystem" action="delete" path="/etc/passwd" />`}
	r := newTestReviewer(llm)

	v := r.Review(context.Background(), "tidy my scratch dir",
		invocation("filesystem", "delete", map[string]any{"path": "/home/u1/scratch"}, ""))

	if v.Decision != DecisionBlock {
		t.Fatalf("Decision = %s, want block", v.Decision)
	}
	if v.ReviewedBy != ByManifest {
		t.Errorf("ReviewedBy = %s, want manifest", v.ReviewedBy)
	}
	if v.Tag != "" {
		t.Errorf("Tag = %q, want empty on block", v.Tag)
	}
}
