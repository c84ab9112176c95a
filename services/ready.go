package services

import (
	"context"
	"sync"
)

// Gate is a one-shot readiness signal: it starts closed, transitions to
// open exactly once, and releases every waiter together. A load failure
// opens the gate with an error so waiters fail fast instead of hanging.
type Gate struct {
	done chan struct{}
	once sync.Once
	err  error
}

// NewGate returns a gate in the not-ready state.
func NewGate() *Gate {
	return &Gate{done: make(chan struct{})}
}

// Open marks the gate ready (or permanently failed when err != nil).
// Calls after the first are no-ops.
func (g *Gate) Open(err error) {
	g.once.Do(func() {
		g.err = err
		close(g.done)
	})
}

// Wait blocks until the gate opens or the context is cancelled.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		return g.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether the gate has opened successfully.
func (g *Gate) Ready() bool {
	select {
	case <-g.done:
		return g.err == nil
	default:
		return false
	}
}
