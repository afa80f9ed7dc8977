// Package routing is the boundary to route-length computation. The dispatch
// core only needs a length/ETA between two poses of a fleet, or the fact that
// no path exists.
package routing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kilianp07/fleetcore/core/model"
)

// ErrUnreachable is returned when no path links the two poses.
var ErrUnreachable = errors.New("destination unreachable")

// Route is the outcome of a route query.
type Route struct {
	Length float64 // metres
	ETA    float64 // seconds
}

// Oracle computes routes on the site map of a fleet.
type Oracle interface {
	Route(ctx context.Context, fleet string, from, to model.Pose) (Route, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, fleet string, from, to model.Pose) (Route, error)

func (f OracleFunc) Route(ctx context.Context, fleet string, from, to model.Pose) (Route, error) {
	return f(ctx, fleet, from, to)
}

type cacheKey struct {
	fleet    string
	from, to model.Pose
}

// CachedOracle memoises successful and unreachable answers of another oracle.
// Other errors are not cached.
type CachedOracle struct {
	next Oracle
	mu   sync.RWMutex
	hits map[cacheKey]cached
}

type cached struct {
	route Route
	err   error
}

// NewCachedOracle wraps next.
func NewCachedOracle(next Oracle) *CachedOracle {
	return &CachedOracle{next: next, hits: make(map[cacheKey]cached)}
}

func (c *CachedOracle) Route(ctx context.Context, fleet string, from, to model.Pose) (Route, error) {
	k := cacheKey{fleet, from, to}
	c.mu.RLock()
	hit, ok := c.hits[k]
	c.mu.RUnlock()
	if ok {
		return hit.route, hit.err
	}
	r, err := c.next.Route(ctx, fleet, from, to)
	if err == nil || errors.Is(err, ErrUnreachable) {
		c.mu.Lock()
		c.hits[k] = cached{route: r, err: err}
		c.mu.Unlock()
	}
	return r, err
}

// Invalidate drops every cached answer, e.g. after a map change.
func (c *CachedOracle) Invalidate() {
	c.mu.Lock()
	c.hits = make(map[cacheKey]cached)
	c.mu.Unlock()
}

// unreachable wraps ErrUnreachable with the query details.
func unreachable(fleet string, from, to model.Pose) error {
	return fmt.Errorf("fleet %s (%.2f,%.2f)->(%.2f,%.2f): %w", fleet, from.X, from.Y, to.X, to.Y, ErrUnreachable)
}
