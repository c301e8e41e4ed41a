package handlers

import (
	"fmt"
	"sync"

	"github.com/taskflow/scheduler/internal/domain"
)

// Registry resolves a Task's handler string to a Handler, the Go analogue of
// the original's dynamic module-path resolution — here the set of valid
// strings is closed and registered at startup rather than imported by path.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds name to h. Re-registering a name overwrites the previous
// binding, which is convenient for tests that swap in a fake handler.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

func (r *Registry) Resolve(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrHandlerNotFound, name)
	}
	return h, nil
}
