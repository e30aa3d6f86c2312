package orchestrator

import (
	"time"

	"github.com/room302studio/coachartie2-sub006/internal/capability"
)

// Result records one dispatched invocation's outcome, in execution order.
type Result struct {
	Capability string
	Action     string
	Success    bool
	Output     string
	Error      string
}

// Context is the per-message orchestration state. It is created when a
// message enters orchestration, mutated only by the goroutine that owns the
// message, and removed at finalization.
type Context struct {
	MessageID       string
	UserID          string
	OriginalMessage string
	Source          string
	RespondTo       string
	Capabilities    []capability.Invocation
	Results         []Result
	CurrentStep     int
	FailureCounts   map[string]int
	StartedAt       time.Time
	lastGoodReply   string
}

func newContext(msgID, userID, message, source, respondTo string) *Context {
	return &Context{
		MessageID:       msgID,
		UserID:          userID,
		OriginalMessage: message,
		Source:          source,
		RespondTo:       respondTo,
		FailureCounts:   make(map[string]int),
		StartedAt:       time.Now(),
	}
}

// recordResult appends in strict execution order and maintains the
// consecutive-failure count that drives the circuit breaker.
func (c *Context) recordResult(inv capability.Invocation, r Result) {
	c.Capabilities = append(c.Capabilities, inv)
	c.Results = append(c.Results, r)
	if r.Success {
		c.FailureCounts[inv.Name] = 0
	} else {
		c.FailureCounts[inv.Name]++
	}
}
