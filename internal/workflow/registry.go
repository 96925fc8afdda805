package workflow

import (
	"context"
	"sort"
	"sync"
)

// Handler is a named capability invoked by a step. Implementations receive
// the step parameters after interpolation and a read-only snapshot of the
// execution variables, and return an opaque output value. The engine stores
// the output without interpreting its structure.
type Handler interface {
	Execute(ctx context.Context, params map[string]any, vars map[string]any) (any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, params map[string]any, vars map[string]any) (any, error)

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, params map[string]any, vars map[string]any) (any, error) {
	return f(ctx, params, vars)
}

// Registry is the process-wide table mapping action names to handlers.
// It is populated at startup and read-only during execution; collaborators
// may keep registering actions between runs. All methods are safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty action registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register associates a name with a handler. Duplicate registration
// overwrites silently, so tests can override built-in actions.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// RegisterFunc registers a plain function as a handler.
func (r *Registry) RegisterFunc(name string, fn HandlerFunc) {
	r.Register(name, fn)
}

// Get returns the handler for a name. The second return value is false when
// no handler is registered; the executor turns that into a step failure.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the sorted list of registered action names.
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
