package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// State is the construction state of a Gate.
type State int32

const (
	Uninitialized State = iota
	Initializing
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Factory builds the backend handle. It runs at most once per successful
// construction and is retried after a failure.
type Factory func(ctx context.Context) (Backend, error)

var errNoBackend = errors.New("factory returned no backend")

// Gate guarantees the backend handle is constructed at most once, after the
// host is ready, and never lets a construction failure escape as a panic.
type Gate struct {
	factory  Factory
	barrier  <-chan struct{}
	logger   *slog.Logger
	group    singleflight.Group
	handle   atomic.Pointer[handle]
	state    atomic.Int32
	attempts atomic.Int64
}

type handle struct {
	backend Backend
}

// Option configures a Gate.
type Option func(*Gate)

// WithBarrier makes construction wait until ready is closed.
func WithBarrier(ready <-chan struct{}) Option {
	return func(g *Gate) { g.barrier = ready }
}

// WithLogger sets the logger used for construction failures.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

func NewGate(factory Factory, opts ...Option) *Gate {
	g := &Gate{factory: factory, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// TryGet returns the handle if it has been constructed, nil otherwise. It
// never starts construction.
func (g *Gate) TryGet() Backend {
	if h := g.handle.Load(); h != nil {
		return h.backend
	}
	return nil
}

// EnsureInitialized returns the handle, constructing it if needed. Callers
// that arrive while a construction is in flight share its result. It returns
// nil when construction fails or ctx ends first; the next call retries.
func (g *Gate) EnsureInitialized(ctx context.Context) Backend {
	if b := g.TryGet(); b != nil {
		return b
	}

	// The flight outlives the caller that started it, so it runs detached
	// from that caller's cancellation.
	flightCtx := context.WithoutCancel(ctx)
	ch := g.group.DoChan("construct", func() (any, error) {
		return g.construct(flightCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil
		}
		b, _ := res.Val.(Backend)
		return b
	case <-ctx.Done():
		return nil
	}
}

// Acquire is TryGet with EnsureInitialized as the fallback.
func (g *Gate) Acquire(ctx context.Context) Backend {
	if b := g.TryGet(); b != nil {
		return b
	}
	return g.EnsureInitialized(ctx)
}

// State reports the current construction state.
func (g *Gate) State() State {
	return State(g.state.Load())
}

// Attempts reports how many times the factory has been invoked.
func (g *Gate) Attempts() int {
	return int(g.attempts.Load())
}

func (g *Gate) construct(ctx context.Context) (b Backend, err error) {
	// A previous flight may have finished between TryGet and DoChan.
	if h := g.handle.Load(); h != nil {
		return h.backend, nil
	}

	g.state.Store(int32(Initializing))
	defer func() {
		if r := recover(); r != nil {
			b, err = nil, fmt.Errorf("construct backend: panic: %v", r)
		}
		if err == nil && b == nil {
			err = errNoBackend
		}
		if err != nil {
			g.state.Store(int32(Failed))
			g.logger.Warn("backend unavailable", "error", err, "attempt", g.Attempts())
			b = nil
			return
		}
		g.handle.Store(&handle{backend: b})
		g.state.Store(int32(Ready))
		g.logger.Info("backend ready", "attempt", g.Attempts())
	}()

	if g.barrier != nil {
		select {
		case <-g.barrier:
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for host: %w", ctx.Err())
		}
	}

	g.attempts.Add(1)
	if g.factory == nil {
		return nil, errors.New("no backend factory configured")
	}
	return g.factory(ctx)
}
