package tools

import (
	"context"

	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

// Definition is the wire description of one callable tool.
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Tool executes one named operation against a loose argument map. Exactly
// one of the return values is meaningful: a result or an error.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// Registry holds the available tools in registration order.
type Registry struct {
	order  []string
	byName map[string]Tool
	log    *logger.Logger
}

func NewRegistry(log *logger.Logger, tools ...Tool) *Registry {
	r := &Registry{
		byName: make(map[string]Tool, len(tools)),
		log:    log.With("component", "tool_registry"),
	}
	for _, t := range tools {
		if _, exists := r.byName[t.Name()]; exists {
			continue
		}
		r.order = append(r.order, t.Name())
		r.byName[t.Name()] = t
	}
	r.log.Info("Tool registry ready", "tools", len(r.order))
	return r
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		t := r.byName[name]
		out = append(out, Definition{Name: t.Name(), Description: t.Description()})
	}
	return out
}

func (r *Registry) Len() int { return len(r.order) }
