// Package conscience is the safety review layer between parsed capability
// invocations and execution. Three outcomes per invocation: immediate block
// from the static danger manifest, immediate allow from the allowlist, or a
// model-backed judgment for everything else. Review-call failures block —
// never silently allow.
package conscience

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/room302studio/coachartie2-sub006/internal/capability"
	"github.com/room302studio/coachartie2-sub006/internal/provider"
)

type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionBlock Decision = "block"
)

// ReviewedBy records which layer produced the verdict.
type ReviewedBy string

const (
	ByManifest  ReviewedBy = "manifest"
	ByAllowlist ReviewedBy = "allowlist"
	ByModel     ReviewedBy = "model"
)

type Verdict struct {
	Decision   Decision
	ReviewedBy ReviewedBy
	Warnings   []string
	Reason     string
	// Tag is the invocation re-serialized for execution; set only on allow.
	Tag string
}

type Reviewer struct {
	llm   provider.Client
	model string
	log   zerolog.Logger
}

func NewReviewer(llm provider.Client, model string, log zerolog.Logger) *Reviewer {
	return &Reviewer{
		llm:   llm,
		model: model,
		log:   log.With().Str("component", "conscience").Logger(),
	}
}

// Review classifies one proposed invocation. Manifest blocks are checked
// first and are final; the allowlist short-circuits the model review.
func (r *Reviewer) Review(ctx context.Context, userMessage string, inv capability.Invocation) Verdict {
	if reason := checkManifest(inv.Name, inv.Action, inv.Params, inv.RawContent); reason != "" {
		r.log.Warn().Str("capability", inv.Name).Str("action", inv.Action).Str("reason", reason).
			Msg("manifest block")
		return Verdict{Decision: DecisionBlock, ReviewedBy: ByManifest, Reason: reason}
	}

	if allowlistedCapabilities[inv.Name] {
		return Verdict{Decision: DecisionAllow, ReviewedBy: ByAllowlist, Tag: inv.Tag()}
	}

	return r.modelReview(ctx, userMessage, inv)
}

func (r *Reviewer) modelReview(ctx context.Context, userMessage string, inv capability.Invocation) Verdict {
	prompt := buildReviewPrompt(userMessage, inv)

	resp, err := r.llm.Complete(ctx, &provider.CompletionRequest{
		Model: r.model,
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: reviewSystemPrompt},
			{Role: provider.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		// Fail closed: infrastructure trouble never becomes permission.
		r.log.Error().Err(err).Str("capability", inv.Name).Msg("safety review call failed")
		return Verdict{
			Decision:   DecisionBlock,
			ReviewedBy: ByModel,
			Reason:     "I couldn't complete a safety review for that action, so I'm not running it.",
			Warnings:   []string{"safety review unavailable: " + err.Error()},
		}
	}

	// An allow comes back as a re-emitted capability tag; anything else is a
	// block with the model's prose as the explanation. The re-emitted form is
	// what executes, so it goes back through the manifest: a block can never
	// be lifted by rewriting the invocation.
	if invs := capability.ExtractCapabilities(resp.Content); len(invs) > 0 {
		rewritten := invs[0]
		if reason := checkManifest(rewritten.Name, rewritten.Action, rewritten.Params, rewritten.RawContent); reason != "" {
			r.log.Warn().Str("capability", rewritten.Name).Str("action", rewritten.Action).Str("reason", reason).
				Msg("manifest block on model-rewritten invocation")
			return Verdict{Decision: DecisionBlock, ReviewedBy: ByManifest, Reason: reason}
		}
		return Verdict{Decision: DecisionAllow, ReviewedBy: ByModel, Tag: rewritten.Tag()}
	}
	reason := strings.TrimSpace(resp.Content)
	if reason == "" {
		reason = "The safety review declined this action."
	}
	return Verdict{Decision: DecisionBlock, ReviewedBy: ByModel, Reason: reason}
}

const reviewSystemPrompt = `You are a safety reviewer for a chatbot's tool invocations.
You will be shown the user's message and one proposed capability invocation.
If the invocation is safe to execute, respond with the invocation tag exactly as given, and nothing else.
If it is not safe, respond with a short plain-language explanation of why you are declining. Do NOT include any <capability> tag in a refusal.`

func buildReviewPrompt(userMessage string, inv capability.Invocation) string {
	var sb strings.Builder
	sb.WriteString("Dangerous patterns that must always be declined:\n")
	for _, p := range protectedPathPrefixes {
		fmt.Fprintf(&sb, "- filesystem deletes under %s\n", p)
	}
	for _, p := range destructiveCommandPatterns {
		fmt.Fprintf(&sb, "- shell commands matching %s\n", p.String())
	}
	for _, tok := range sqlInjectionTokens {
		fmt.Fprintf(&sb, "- stored content containing %q\n", tok)
	}
	if note, ok := capabilityRiskNotes[inv.Name]; ok {
		fmt.Fprintf(&sb, "\nCapability-specific risk: %s\n", note)
	}
	fmt.Fprintf(&sb, "\nUser message:\n%s\n\nProposed invocation:\n%s\n", userMessage, inv.Tag())
	return sb.String()
}
