// Package request carries the unit-of-work context through a handler chain:
// who asked, and which fleets the work touched.
package request

import (
	"context"
	"slices"
	"sync"
)

// Context is created once per inbound message and threaded through every
// call that handles it.
type Context struct {
	Requester string

	mu     sync.Mutex
	fleets map[string]struct{}
}

// New returns an empty unit of work for requester.
func New(requester string) *Context {
	return &Context{Requester: requester, fleets: make(map[string]struct{})}
}

// Touch records that fleet changed in a way that may alter dispatch.
func (c *Context) Touch(fleet string) {
	if c == nil || fleet == "" {
		return
	}
	c.mu.Lock()
	c.fleets[fleet] = struct{}{}
	c.mu.Unlock()
}

// Fleets returns the touched fleets in name order.
func (c *Context) Fleets() []string {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.fleets))
	for f := range c.fleets {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

type key struct{}

// With attaches rc to ctx.
func With(ctx context.Context, rc *Context) context.Context {
	return context.WithValue(ctx, key{}, rc)
}

// From returns the unit of work attached to ctx, or nil.
func From(ctx context.Context) *Context {
	rc, _ := ctx.Value(key{}).(*Context)
	return rc
}

// Touch records fleet on the unit of work carried by ctx, if any.
func Touch(ctx context.Context, fleet string) {
	From(ctx).Touch(fleet)
}
