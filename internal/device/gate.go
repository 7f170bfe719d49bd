package device

import "context"

// Gate serializes gestures on a shared touch sink. Whoever holds the gate
// owns the pointer until Release; a scroll swipe and a replayed drag can
// never interleave.
type Gate struct {
	ch chan struct{}
}

// NewGate creates an open gate.
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{}, 1)}
}

// Acquire blocks until the gate is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the gate. Releasing an open gate is a no-op.
func (g *Gate) Release() {
	select {
	case <-g.ch:
	default:
	}
}

// Do runs fn while holding the gate.
func (g *Gate) Do(ctx context.Context, fn func() error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return fn()
}
