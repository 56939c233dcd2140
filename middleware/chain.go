// Package middleware provides the onion-model interception pipeline that
// wraps every job handler, plus a set of ready-made middleware.
//
// The first middleware added is the outermost layer: for middleware added as
// outer, inner and a terminal handler T the execution order is
//
//	outer.before → inner.before → T → inner.after → outer.after
package middleware

import (
	"fmt"
	"sync"

	"github.com/BranchIntl/ojsworker/errors"
	"github.com/BranchIntl/ojsworker/job"
)

// Next invokes the next inner layer of the chain
type Next func() (any, error)

// Middleware intercepts a dispatch. Calling next continues inward; returning
// without calling it short-circuits the chain and the returned values become
// the result of the whole invocation.
type Middleware interface {
	Call(ctx *job.Context, next Next) (any, error)
}

// Func adapts an ordinary function to the Middleware interface
type Func func(ctx *job.Context, next Next) (any, error)

// Call calls f(ctx, next)
func (f Func) Call(ctx *job.Context, next Next) (any, error) {
	return f(ctx, next)
}

type entry struct {
	name string
	mw   Middleware
}

// Chain is an ordered, concurrency-safe list of middleware. Structural edits
// only affect invocations that start after the edit.
type Chain struct {
	mu      sync.RWMutex
	entries []entry
}

// NewChain creates an empty chain
func NewChain() *Chain {
	return &Chain{}
}

// Add appends mw as the innermost layer. name may be empty.
func (c *Chain) Add(name string, mw Middleware) error {
	if IsNil(mw) {
		return errors.ErrNilMiddleware
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = append(c.entries, entry{name: name, mw: mw})
	return nil
}

// Prepend inserts mw as the outermost layer
func (c *Chain) Prepend(name string, mw Middleware) error {
	if IsNil(mw) {
		return errors.ErrNilMiddleware
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = append([]entry{{name: name, mw: mw}}, c.entries...)
	return nil
}

// InsertBefore inserts mw directly outside the first entry named target
func (c *Chain) InsertBefore(target, name string, mw Middleware) error {
	return c.insert(target, 0, name, mw)
}

// InsertAfter inserts mw directly inside the first entry named target
func (c *Chain) InsertAfter(target, name string, mw Middleware) error {
	return c.insert(target, 1, name, mw)
}

func (c *Chain) insert(target string, offset int, name string, mw Middleware) error {
	if IsNil(mw) {
		return errors.ErrNilMiddleware
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(target)
	if i < 0 {
		return fmt.Errorf("%w: %q", errors.ErrMiddlewareNotFound, target)
	}
	i += offset

	entries := make([]entry, 0, len(c.entries)+1)
	entries = append(entries, c.entries[:i]...)
	entries = append(entries, entry{name: name, mw: mw})
	entries = append(entries, c.entries[i:]...)
	c.entries = entries
	return nil
}

// Remove deletes the first entry named name
func (c *Chain) Remove(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(name)
	if i < 0 {
		return fmt.Errorf("%w: %q", errors.ErrMiddlewareNotFound, name)
	}

	entries := make([]entry, 0, len(c.entries)-1)
	entries = append(entries, c.entries[:i]...)
	entries = append(entries, c.entries[i+1:]...)
	c.entries = entries
	return nil
}

// Clear removes every entry
func (c *Chain) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}

// Len returns the number of entries
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Names returns the entry names in execution order; unnamed entries are ""
func (c *Chain) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.name
	}
	return names
}

// Invoke runs ctx through a snapshot of the chain around terminal
func (c *Chain) Invoke(ctx *job.Context, terminal job.Handler) (any, error) {
	c.mu.RLock()
	snapshot := c.entries
	c.mu.RUnlock()

	next := Next(func() (any, error) {
		return terminal.Handle(ctx)
	})
	for i := len(snapshot) - 1; i >= 0; i-- {
		mw := snapshot[i].mw
		inner := next
		next = func() (any, error) {
			return mw.Call(ctx, inner)
		}
	}
	return next()
}

// indexOf expects the caller to hold the lock
func (c *Chain) indexOf(name string) int {
	for i, e := range c.entries {
		if e.name == name {
			return i
		}
	}
	return -1
}

// IsNil reports whether mw is nil or a nil Func
func IsNil(mw Middleware) bool {
	if mw == nil {
		return true
	}
	f, ok := mw.(Func)
	return ok && f == nil
}
