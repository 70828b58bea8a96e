// Package lifecycle holds the host-runtime ready signal that network and
// storage work waits on during startup.
package lifecycle

import (
	"context"
	"sync"
)

// Barrier is closed exactly once, when the host reports it is ready.
type Barrier struct {
	once sync.Once
	ch   chan struct{}
}

func NewBarrier() *Barrier {
	return &Barrier{ch: make(chan struct{})}
}

// Release opens the barrier. Calling it more than once is a no-op.
func (b *Barrier) Release() {
	b.once.Do(func() { close(b.ch) })
}

// Done returns a channel closed on Release.
func (b *Barrier) Done() <-chan struct{} {
	return b.ch
}

// Released reports whether Release has been called.
func (b *Barrier) Released() bool {
	select {
	case <-b.ch:
		return true
	default:
		return false
	}
}

// Wait blocks until Release or until ctx ends.
func (b *Barrier) Wait(ctx context.Context) error {
	select {
	case <-b.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
