// Package triage narrows the full capability registry down to a small
// relevant subset before the main reasoning call, using a deliberately cheap
// model. Triage is a cost optimization, not a correctness gate: when the
// cheap model is unreachable the selector fails open and returns everything.
package triage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/room302studio/coachartie2-sub006/internal/capability"
	"github.com/room302studio/coachartie2-sub006/internal/metrics"
	"github.com/room302studio/coachartie2-sub006/internal/provider"
)

const (
	maxNominations = 5
	minScore       = 0.3
)

// Nomination is one candidate from the triage model's output.
type Nomination struct {
	Capability capability.Descriptor
	Score      float64
	Reason     string
}

type Selector struct {
	llm      provider.Client
	model    string
	registry *capability.Registry
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

func NewSelector(llm provider.Client, model string, registry *capability.Registry, m *metrics.Metrics, log zerolog.Logger) *Selector {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Selector{
		llm:      llm,
		model:    model,
		registry: registry,
		metrics:  m,
		log:      log.With().Str("component", "triage").Logger(),
	}
}

// SelectRelevantCapabilities returns at most 5 descriptors, highest score
// first, score >= 0.3. On triage failure it returns the entire registry.
func (s *Selector) SelectRelevantCapabilities(ctx context.Context, userMessage, conversationContext string) []capability.Descriptor {
	resp, err := s.llm.Complete(ctx, &provider.CompletionRequest{
		Model: s.model,
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: triageSystemPrompt},
			{Role: provider.RoleUser, Content: s.buildPrompt(userMessage, conversationContext)},
		},
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("triage call failed, failing open with full registry")
		s.metrics.TriageFailOpen.Inc()
		return s.registry.List()
	}

	noms := s.parseNominations(resp.Content)
	sort.SliceStable(noms, func(i, j int) bool { return noms[i].Score > noms[j].Score })
	if len(noms) > maxNominations {
		noms = noms[:maxNominations]
	}

	out := make([]capability.Descriptor, 0, len(noms))
	for _, n := range noms {
		out = append(out, n.Capability)
	}
	return out
}

const triageSystemPrompt = `You decide which tools could be relevant to a user's message.
For each relevant capability, emit one line exactly in the form:
CAPABILITY: <name> | SCORE: <0.0-1.0> | REASON: <short reason>
If no capability is relevant, respond with the single token NONE.`

func (s *Selector) buildPrompt(userMessage, conversationContext string) string {
	var sb strings.Builder
	sb.WriteString("Available capabilities:\n")
	sb.WriteString(s.registry.PromptListing())
	if conversationContext != "" {
		fmt.Fprintf(&sb, "\nConversation context:\n%s\n", conversationContext)
	}
	fmt.Fprintf(&sb, "\nUser message:\n%s\n", userMessage)
	return sb.String()
}

// parseNominations extracts CAPABILITY lines, dropping names that do not
// exist in the registry and scores below the floor.
func (s *Selector) parseNominations(text string) []Nomination {
	var noms []Nomination
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.EqualFold(line, "NONE") {
			continue
		}
		if !strings.HasPrefix(strings.ToUpper(line), "CAPABILITY:") {
			continue
		}
		parts := strings.Split(line, "|")
		name := strings.TrimSpace(parts[0][strings.Index(parts[0], ":")+1:])
		var score float64
		var reason string
		for _, part := range parts[1:] {
			part = strings.TrimSpace(part)
			upper := strings.ToUpper(part)
			switch {
			case strings.HasPrefix(upper, "SCORE:"):
				v, err := strconv.ParseFloat(strings.TrimSpace(part[len("SCORE:"):]), 64)
				if err == nil {
					score = v
				}
			case strings.HasPrefix(upper, "REASON:"):
				reason = strings.TrimSpace(part[len("REASON:"):])
			}
		}
		if score < minScore {
			continue
		}
		desc, ok := s.registry.Get(name)
		if !ok {
			s.log.Debug().Str("name", name).Msg("triage nominated unknown capability, dropping")
			continue
		}
		noms = append(noms, Nomination{Capability: desc, Score: score, Reason: reason})
	}
	return noms
}
