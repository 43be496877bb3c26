// Package plugin defines the contract between the agent and the monitoring
// actions it can execute.
package plugin

import (
	"context"
	"fmt"
	"sort"
)

// Action is one monitoring routine. Args arrive verbatim from the task
// configuration; the returned detail must be JSON-serializable.
type Action func(ctx context.Context, args any) (any, error)

// Registry maps action names to implementations. It is populated during
// startup and read-only afterwards.
type Registry struct {
	actions map[string]Action
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Action)}
}

// Register adds an action under a unique name.
func (r *Registry) Register(name string, action Action) error {
	if name == "" {
		return fmt.Errorf("action name is required")
	}
	if action == nil {
		return fmt.Errorf("action %q is nil", name)
	}
	if _, exists := r.actions[name]; exists {
		return fmt.Errorf("action %q already registered", name)
	}
	r.actions[name] = action
	return nil
}

// Lookup returns the action registered under name.
func (r *Registry) Lookup(name string) (Action, bool) {
	action, ok := r.actions[name]
	return action, ok
}

// Names lists the registered action names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
