// Package orchestrator runs the capability loop: it asks the model for a
// response, extracts capability invocations from it, runs each through
// safety review and dispatch, feeds results back, and repeats until the
// model is done or the budget runs out.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/room302studio/coachartie2-sub006/internal/actor"
	"github.com/room302studio/coachartie2-sub006/internal/capability"
	"github.com/room302studio/coachartie2-sub006/internal/channel"
	"github.com/room302studio/coachartie2-sub006/internal/conscience"
	"github.com/room302studio/coachartie2-sub006/internal/failover"
	"github.com/room302studio/coachartie2-sub006/internal/fuzzy"
	"github.com/room302studio/coachartie2-sub006/internal/metrics"
	"github.com/room302studio/coachartie2-sub006/internal/provider"
	"github.com/room302studio/coachartie2-sub006/internal/state"
	"github.com/room302studio/coachartie2-sub006/internal/triage"
)

// SafetyReviewer is the conscience boundary.
type SafetyReviewer interface {
	Review(ctx context.Context, userMessage string, inv capability.Invocation) conscience.Verdict
}

// Selector is the triage boundary.
type Selector interface {
	SelectRelevantCapabilities(ctx context.Context, userMessage, conversationContext string) []capability.Descriptor
}

// SubConversationHandler short-circuits orchestration for users with an
// active multi-turn flow (e.g. an in-progress drafting conversation).
type SubConversationHandler interface {
	Active(userID string) bool
	Handle(ctx context.Context, msg channel.IncomingMessage) (string, error)
}

// Reflector records what happened during a message for later recall.
type Reflector interface {
	SaveReflection(ctx context.Context, r *state.Reflection) error
}

type Options struct {
	MaxIterations     int
	CapabilityTimeout time.Duration
	FailureThreshold  int
	ReflectionEnabled bool
}

func (o *Options) applyDefaults() {
	if o.MaxIterations <= 0 {
		o.MaxIterations = 10
	}
	if o.CapabilityTimeout <= 0 {
		o.CapabilityTimeout = 30 * time.Second
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 3
	}
}

type Orchestrator struct {
	llm      provider.Client
	model    string
	registry *capability.Registry
	reviewer SafetyReviewer
	selector Selector
	subConvo SubConversationHandler
	reflect  Reflector
	metrics  *metrics.Metrics
	opts     Options
	log      zerolog.Logger

	mu       sync.Mutex
	contexts map[string]*Context
}

func New(
	llm provider.Client,
	model string,
	registry *capability.Registry,
	reviewer SafetyReviewer,
	selector Selector,
	m *metrics.Metrics,
	opts Options,
	log zerolog.Logger,
) *Orchestrator {
	opts.applyDefaults()
	if m == nil {
		m = metrics.NewNop()
	}
	return &Orchestrator{
		llm:      llm,
		model:    model,
		registry: registry,
		reviewer: reviewer,
		selector: selector,
		metrics:  m,
		opts:     opts,
		log:      log.With().Str("component", "orchestrator").Logger(),
		contexts: make(map[string]*Context),
	}
}

// WithSubConversations installs the multi-turn short-circuit handler.
func (o *Orchestrator) WithSubConversations(h SubConversationHandler) *Orchestrator {
	o.subConvo = h
	return o
}

// WithReflector enables the post-orchestration reflection write.
func (o *Orchestrator) WithReflector(r Reflector) *Orchestrator {
	o.reflect = r
	return o
}

// ActiveContexts reports in-flight messages, for the health endpoint.
func (o *Orchestrator) ActiveContexts() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.contexts)
}

// OrchestrateMessage processes one normalized message end to end and always
// returns a deliverable string. Nothing escapes this boundary: upstream
// failures are classified into user-facing messages, loop failures degrade
// to the last known-good model response, and panics become the generic
// failure message.
func (o *Orchestrator) OrchestrateMessage(ctx context.Context, msg channel.IncomingMessage) (reply string) {
	log := o.log.With().Str("message_id", msg.ID).Str("source", msg.Source).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("orchestration panicked")
			o.metrics.OrchestrationsCompleted.WithLabelValues("error").Inc()
			reply = failover.Classify(fmt.Errorf("panic: %v", r)).UserMessage
		}
	}()

	if o.subConvo != nil && o.subConvo.Active(msg.UserID) {
		out, err := o.subConvo.Handle(ctx, msg)
		if err != nil {
			log.Error().Err(err).Msg("sub-conversation handler failed")
			return failover.Classify(err).UserMessage
		}
		return out
	}

	o.metrics.OrchestrationsStarted.Inc()
	octx := newContext(msg.ID, msg.UserID, msg.Message, msg.Source, msg.RespondTo)
	o.mu.Lock()
	o.contexts[msg.ID] = octx
	o.mu.Unlock()

	outcome := "final"
	defer func() {
		o.mu.Lock()
		delete(o.contexts, msg.ID)
		o.mu.Unlock()
		o.metrics.OrchestrationsCompleted.WithLabelValues(outcome).Inc()
		o.metrics.LoopIterations.Observe(float64(octx.CurrentStep))
		o.writeReflection(octx, reply)
	}()

	caps := o.selectCapabilities(ctx, msg)

	initial, err := o.complete(ctx, o.systemPrompt(caps), msg.Message)
	if err != nil {
		log.Error().Err(err).Msg("initial completion failed")
		outcome = "error"
		return failover.Classify(err).UserMessage
	}
	octx.lastGoodReply = stripLoopMarker(initial)

	if !wantsLoop(initial) {
		// No-loop path: the initial response is already the final answer.
		return initial
	}

	final, err := o.runLoop(ctx, octx, msg, caps, initial)
	if err != nil {
		// Loop failures degrade to no-loop behavior, never to silence.
		log.Warn().Err(err).Msg("loop failed, falling back to last good response")
		outcome = "fallback"
		if octx.lastGoodReply != "" {
			return octx.lastGoodReply
		}
		return failover.Classify(err).UserMessage
	}
	return final
}

// selectCapabilities runs the advisory pre-filter and then triage. The
// pre-filter only skips the triage spend; it never blocks capability use —
// tags the model emits anyway are still parsed and dispatched.
func (o *Orchestrator) selectCapabilities(ctx context.Context, msg channel.IncomingMessage) []capability.Descriptor {
	if !triage.LikelyNeedsCapabilities(msg.Message) {
		return nil
	}
	return o.selector.SelectRelevantCapabilities(ctx, msg.Message, msg.Context)
}

// runLoop is the bounded iteration: parse, review, dispatch, feed back.
func (o *Orchestrator) runLoop(ctx context.Context, octx *Context, msg channel.IncomingMessage, caps []capability.Descriptor, current string) (string, error) {
	log := o.log.With().Str("message_id", octx.MessageID).Logger()

	for octx.CurrentStep < o.opts.MaxIterations {
		octx.CurrentStep++

		invocations := capability.ExtractCapabilities(current)
		if len(invocations) == 0 {
			// The model asked to loop but gave us nothing to run.
			return stripLoopMarker(current), nil
		}

		var turnResults []Result
		for _, inv := range invocations {
			r := o.dispatch(ctx, octx, msg.Message, inv)
			octx.recordResult(inv, r)
			turnResults = append(turnResults, r)
		}

		next, err := o.complete(ctx, o.systemPrompt(caps), o.feedbackPrompt(msg.Message, turnResults))
		if err != nil {
			return "", fmt.Errorf("loop step %d completion: %w", octx.CurrentStep, err)
		}
		octx.lastGoodReply = stripLoopMarker(next)

		if !wantsLoop(next) {
			return stripLoopMarker(next), nil
		}
		current = next
	}

	log.Warn().Int("steps", octx.CurrentStep).Msg("iteration budget exhausted")
	return octx.lastGoodReply, nil
}

// dispatch takes one parsed invocation through validation, safety review,
// and execution. Every failure mode comes back as a Result the model can
// read and react to on its next turn.
func (o *Orchestrator) dispatch(ctx context.Context, octx *Context, userMessage string, inv capability.Invocation) Result {
	base := Result{Capability: inv.Name, Action: inv.Action}

	if octx.FailureCounts[inv.Name] >= o.opts.FailureThreshold {
		o.metrics.CapabilityExecutions.WithLabelValues(inv.Name, "skipped").Inc()
		base.Error = fmt.Sprintf("capability %q has failed %d times in a row and is disabled for the rest of this conversation", inv.Name, o.opts.FailureThreshold)
		return base
	}

	desc, ok := o.registry.Get(inv.Name)
	if !ok {
		matches := fuzzy.FindMatches(inv.Name, o.registry.Names(), fuzzy.DefaultOptions())
		base.Error = fuzzy.FormatSuggestions("capability", inv.Name, matches)
		o.metrics.CapabilityExecutions.WithLabelValues(inv.Name, "failure").Inc()
		return base
	}
	if !desc.SupportsAction(inv.Action) {
		matches := fuzzy.FindMatches(inv.Action, desc.SupportedActions, fuzzy.DefaultOptions())
		base.Error = fuzzy.FormatSuggestions("action", inv.Action, matches)
		o.metrics.CapabilityExecutions.WithLabelValues(inv.Name, "failure").Inc()
		return base
	}
	if missing := missingParams(desc, inv); len(missing) > 0 {
		base.Error = fmt.Sprintf("capability %q requires params: %s", inv.Name, strings.Join(missing, ", "))
		o.metrics.CapabilityExecutions.WithLabelValues(inv.Name, "failure").Inc()
		return base
	}

	verdict := o.reviewer.Review(ctx, userMessage, inv)
	o.metrics.SafetyVerdicts.WithLabelValues(string(verdict.Decision), string(verdict.ReviewedBy)).Inc()
	if verdict.Decision != conscience.DecisionAllow {
		o.metrics.CapabilityExecutions.WithLabelValues(inv.Name, "blocked").Inc()
		base.Error = verdict.Reason
		return base
	}

	// The reviewer may have rewritten the invocation; execute its tag.
	if rewritten := capability.ExtractCapabilities(verdict.Tag); len(rewritten) == 1 {
		inv = rewritten[0]
	}

	execCtx := actor.WithSender(ctx, octx.UserID)
	output, err := executeWithTimeout(execCtx, o.opts.CapabilityTimeout, desc, inv)
	if err != nil {
		o.metrics.CapabilityExecutions.WithLabelValues(inv.Name, "failure").Inc()
		base.Error = sanitizeOutput(err.Error())
		return base
	}

	o.metrics.CapabilityExecutions.WithLabelValues(inv.Name, "success").Inc()
	base.Success = true
	base.Output = sanitizeOutput(output)
	return base
}

func missingParams(desc capability.Descriptor, inv capability.Invocation) []string {
	var missing []string
	for _, p := range desc.RequiredParams {
		if _, ok := inv.Params[p]; !ok {
			missing = append(missing, p)
		}
	}
	return missing
}

func (o *Orchestrator) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := o.llm.Complete(ctx, &provider.CompletionRequest{
		Model: o.model,
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: system},
			{Role: provider.RoleUser, Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (o *Orchestrator) feedbackPrompt(originalMessage string, results []Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Original request: %s\n\nCapability results from your last turn:\n", originalMessage)
	for _, r := range results {
		sb.WriteString(wrapResult(r))
		sb.WriteString("\n")
	}
	sb.WriteString("\nContinue. Emit more capability tags with " + loopMarker + " to keep working, or give your final answer without " + loopMarker + ".")
	return sb.String()
}

func (o *Orchestrator) writeReflection(octx *Context, finalResponse string) {
	if !o.opts.ReflectionEnabled || o.reflect == nil {
		return
	}
	entries := make([]state.CapabilityLogEntry, 0, len(octx.Results))
	for _, r := range octx.Results {
		entries = append(entries, state.CapabilityLogEntry{
			Capability: r.Capability,
			Action:     r.Action,
			Success:    r.Success,
		})
	}
	r := &state.Reflection{
		MessageID:       octx.MessageID,
		UserID:          octx.UserID,
		Source:          octx.Source,
		OriginalMessage: octx.OriginalMessage,
		FinalResponse:   finalResponse,
		Steps:           octx.CurrentStep,
		CapabilityLog:   entries,
	}
	// Non-blocking; reflection failures never touch the returned answer.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := o.reflect.SaveReflection(ctx, r); err != nil {
			o.log.Warn().Err(err).Str("message_id", r.MessageID).Msg("reflection write failed")
		}
	}()
}
