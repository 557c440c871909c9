// Package handlers resolves catalog handler references to in-process tool
// handlers.
package handlers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"toolgate/internal/domain"
)

// EchoHandlerName is registered by NewBuiltinRegistry.
const EchoHandlerName = "echo"

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]domain.ToolHandler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]domain.ToolHandler)}
}

// NewBuiltinRegistry returns a registry holding the built-in handlers.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(EchoHandlerName, Echo)
	return r
}

func (r *Registry) Register(name string, handler domain.ToolHandler) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("handler name is required")
	}
	if handler == nil {
		return fmt.Errorf("handler %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("handler %q already registered", name)
	}
	r.handlers[name] = handler
	return nil
}

func (r *Registry) MustRegister(name string, handler domain.ToolHandler) {
	if err := r.Register(name, handler); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(name string) (domain.ToolHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[name]
	return handler, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Echo returns its arguments together with the execution identity, which is
// enough for operators to smoke-test internal dispatch.
func Echo(_ context.Context, args map[string]any, ec domain.ExecutionContext) (any, error) {
	out := map[string]any{
		"executionId": ec.ExecutionID,
		"threadId":    ec.ThreadID,
	}
	if len(args) > 0 {
		out["args"] = args
	}
	return out, nil
}

var _ domain.HandlerRegistry = (*Registry)(nil)
