// Package tasks holds the worker-side task handlers and the executor
// that runs them: it authenticates each envelope, enforces the task's
// deadline, keeps the in-flight registry current and records the result.
package tasks

import (
	"context"
	"fmt"
)

// Handler executes one task invocation. The returned value is stored as
// the task result; a non-nil error marks the execution FAILURE.
type Handler func(ctx context.Context, args []any, opts map[string]any) (any, error)

// Registry maps catalog task names to their handlers.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(name string, h Handler) {
	r.handlers[name] = h
}

func (r *Registry) Get(name string) (Handler, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("tarea sin handler registrado: %s", name)
	}
	return h, nil
}

// Names lists the registered task names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	return names
}
