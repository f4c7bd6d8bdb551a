// Package tools holds the tools the API runner offers the model.
package tools

import (
	"context"
	"encoding/json"
	"sort"
)

// Tool defines the interface for an executable tool.
type Tool interface {
	Name() string
	Description() string
	// Parameters is the JSON schema of the tool input.
	Parameters() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// Registry holds registered tools and provides lookup.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a registry holding ts.
func NewRegistry(ts ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range ts {
		r.Register(t)
	}
	return r
}

// Default returns the tools for a task working in dir. Fetched pages are
// trimmed to budget.
func Default(dir string, budget Budget) *Registry {
	return NewRegistry(NewBash(dir), NewReadURL(budget))
}

func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns the registered tools sorted by name.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
