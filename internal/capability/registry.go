package capability

import (
	"fmt"
	"strings"
	"sync"
)

// Registry maps capability name to descriptor. Registration happens once,
// synchronously, during bootstrap; reads after that point are lock-free in
// spirit, but the mutex stays so misuse fails safe rather than racing.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Descriptor
	order  []string
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Descriptor)}
}

// Register stores the descriptor by name. Re-registering a name overwrites
// the previous descriptor but keeps its original position in List order.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("capability registry: name is required")
	}
	if d.Handler == nil {
		return fmt.Errorf("capability registry: %q has no handler", d.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[d.Name]; !exists {
		r.order = append(r.order, d.Name)
	}
	r.byName[d.Name] = d
	return nil
}

func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

// List returns all descriptors in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Names returns registered capability names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Stats{Capabilities: len(r.byName)}
	for _, d := range r.byName {
		s.Actions += len(d.SupportedActions)
	}
	return s
}

// PromptListing renders a compact text catalog of every capability for the
// triage prompt and the main system prompt.
func (r *Registry) PromptListing() string {
	var sb strings.Builder
	for _, d := range r.List() {
		fmt.Fprintf(&sb, "- %s: %s (actions: %s)\n",
			d.Name, d.Description, strings.Join(d.SupportedActions, ", "))
		for _, ex := range d.Examples {
			fmt.Fprintf(&sb, "  example: %s\n", ex)
		}
	}
	return sb.String()
}

// InstructionsFor renders the detailed instruction block for a narrowed set
// of capabilities, the piece the orchestrator splices into its system prompt.
func InstructionsFor(caps []Descriptor) string {
	var sb strings.Builder
	sb.WriteString("You have access to the following capabilities:\n\n")
	for _, d := range caps {
		fmt.Fprintf(&sb, "## %s\n%s\n", d.Name, d.Description)
		fmt.Fprintf(&sb, "Actions: %s\n", strings.Join(d.SupportedActions, ", "))
		if len(d.RequiredParams) > 0 {
			fmt.Fprintf(&sb, "Required params: %s\n", strings.Join(d.RequiredParams, ", "))
		}
		for _, ex := range d.Examples {
			fmt.Fprintf(&sb, "Example: %s\n", ex)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
