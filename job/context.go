package job

import (
	"context"
	"sync"
)

// Handler executes a job and returns an optional result reported on ack
type Handler interface {
	Handle(ctx *Context) (any, error)
}

// HandlerFunc adapts an ordinary function to the Handler interface
type HandlerFunc func(ctx *Context) (any, error)

// Handle calls f(ctx)
func (f HandlerFunc) Handle(ctx *Context) (any, error) {
	return f(ctx)
}

// HeartbeatFunc extends the lease of a single job
type HeartbeatFunc func(ctx context.Context, jobID string) error

// Context is created for every dispatch and lives until the job is acked or
// nacked. The store is shared by all middleware of one dispatch.
type Context struct {
	Job *Job

	mu        sync.RWMutex
	ctx       context.Context
	store     map[string]any
	heartbeat HeartbeatFunc
}

// NewContext creates a dispatch context for j
func NewContext(ctx context.Context, j *Job, heartbeat HeartbeatFunc) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Context{
		Job:       j,
		ctx:       ctx,
		store:     make(map[string]any),
		heartbeat: heartbeat,
	}
}

// Context returns the Go context the current layer should observe
func (c *Context) Context() context.Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ctx
}

// SetContext replaces the Go context seen by inner layers and returns a
// function restoring the previous one.
func (c *Context) SetContext(ctx context.Context) (restore func()) {
	c.mu.Lock()
	prev := c.ctx
	c.ctx = ctx
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		c.ctx = prev
		c.mu.Unlock()
	}
}

// Set stores a value for later middleware or the handler
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = value
}

// Get returns a stored value
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.store[key]
	return v, ok
}

// Delete removes a stored value
func (c *Context) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
}

// Keys returns the keys currently in the store
func (c *Context) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.store))
	for k := range c.store {
		keys = append(keys, k)
	}
	return keys
}

// Heartbeat extends the lease on this job immediately, outside the periodic
// batch. It is safe to call from any goroutine.
func (c *Context) Heartbeat() error {
	if c.heartbeat == nil {
		return nil
	}
	return c.heartbeat(c.Context(), c.Job.ID)
}
