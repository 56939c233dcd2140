// Package registry maps job types to the handlers that process them.
package registry

import (
	"sort"
	"sync"

	"github.com/BranchIntl/ojsworker/errors"
	"github.com/BranchIntl/ojsworker/job"
)

// Registry is a thread-safe job handler registry
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]job.Handler
}

// NewRegistry creates a new registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]job.Handler),
	}
}

// Register adds a handler for a job type, replacing any previous one
func (r *Registry) Register(jobType string, handler job.Handler) error {
	if jobType == "" {
		return errors.ErrEmptyJobType
	}

	if handler == nil {
		return errors.ErrNilHandler
	}
	if f, ok := handler.(job.HandlerFunc); ok && f == nil {
		return errors.ErrNilHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[jobType] = handler
	return nil
}

// Get retrieves a handler by job type
func (r *Registry) Get(jobType string) (job.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[jobType]
	return handler, ok
}

// List returns all registered job types in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)

	return types
}

// Remove unregisters a handler
func (r *Registry) Remove(jobType string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.handlers, jobType)
}

// Clear removes all registered handlers
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers = make(map[string]job.Handler)
}
