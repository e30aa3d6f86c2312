package capability

import "context"

// Handler executes one capability action. params carries the merged tag
// attributes and data blob; content is the free-text body of the tag, if any.
// Handlers return a descriptive string for validation problems the model can
// self-correct, and an error only for hard failures (missing credentials,
// unreachable dependency).
type Handler func(ctx context.Context, params map[string]any, content string) (string, error)

// Descriptor is the registration record for one capability.
type Descriptor struct {
	Name             string
	Description      string
	SupportedActions []string
	RequiredParams   []string
	Examples         []string
	Handler          Handler
}

// Invocation is one parsed capability request: what the model asked to run,
// with which parameters, and any free-text body the tag carried. It is the
// unit the conscience reviews and the orchestrator dispatches.
type Invocation struct {
	Name       string
	Action     string
	Params     map[string]any
	RawContent string
}

func (d Descriptor) SupportsAction(action string) bool {
	for _, a := range d.SupportedActions {
		if a == action {
			return true
		}
	}
	return false
}

// Stats summarizes the registered surface, for logs and the health endpoint.
type Stats struct {
	Capabilities int
	Actions      int
}
