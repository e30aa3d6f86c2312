package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/room302studio/coachartie2-sub006/internal/capability"
)

const defaultMaxOutputBytes = 64 * 1024

// Capability output is untrusted data. Anything in it that looks like an
// invocation tag gets starred out before the model sees it, so output can
// never smuggle new tool calls into the loop.
var forbiddenOutputPatterns = []*regexp.Regexp{
	regexp.MustCompile(`<capability\b`),
	regexp.MustCompile(`</capability>`),
	regexp.MustCompile(`\[tool_call\]`),
	regexp.MustCompile(`<function_call>`),
	regexp.MustCompile(`"tool_calls"\s*:\s*\[`),
}

func sanitizeOutput(s string) string {
	if s == "" {
		return s
	}
	if len(s) > defaultMaxOutputBytes {
		s = s[:defaultMaxOutputBytes] + "\n[truncated: output exceeded size limit]"
	}
	for _, pat := range forbiddenOutputPatterns {
		s = pat.ReplaceAllStringFunc(s, func(match string) string {
			return strings.Repeat("*", len(match))
		})
	}
	return s
}

// executeWithTimeout runs one handler under its own timeout budget. The
// handler goroutine is left to finish on its own if it overruns; its result
// is discarded.
func executeWithTimeout(ctx context.Context, timeout time.Duration, d capability.Descriptor, inv capability.Invocation) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		output string
		err    error
	}
	// Handlers get their own params copy, with the action included, so a
	// misbehaving handler can't mutate the invocation under us.
	params := make(map[string]any, len(inv.Params)+1)
	for k, v := range inv.Params {
		params[k] = v
	}
	params["action"] = inv.Action

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("capability %q panicked: %v", inv.Name, r)}
			}
		}()
		out, err := d.Handler(callCtx, params, inv.RawContent)
		done <- outcome{out, err}
	}()

	select {
	case o := <-done:
		return o.output, o.err
	case <-callCtx.Done():
		return "", fmt.Errorf("capability %q timed out after %s", inv.Name, timeout)
	}
}

// wrapResult renders one result for the model's next turn. Output rides
// inside a capability_output block that the system prompt declares to be
// data, not instructions.
func wrapResult(r Result) string {
	if r.Error != "" {
		return fmt.Sprintf("[capability_output %s.%s]\nerror: %s\n[/capability_output]", r.Capability, r.Action, r.Error)
	}
	return fmt.Sprintf("[capability_output %s.%s]\n%s\n[/capability_output]", r.Capability, r.Action, r.Output)
}
