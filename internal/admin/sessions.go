package admin

import (
	"context"
	"sync"
	"time"
)

// DefaultSessionTTL is how long an idle client keeps its admin state.
const DefaultSessionTTL = 12 * time.Hour

// Sessions keeps one Gate per client id, so unlocking admin mode in one
// browser leaves every other client locked.
type Sessions struct {
	opts Options
	ttl  time.Duration
	now  func() time.Time

	mu    sync.Mutex
	gates map[string]*clientGate
}

type clientGate struct {
	gate *Gate
	seen time.Time
}

func NewSessions(opts Options, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{opts: opts, ttl: ttl, now: time.Now, gates: make(map[string]*clientGate)}
}

// Lookup returns the client's gate, or nil when the client has none yet.
func (s *Sessions) Lookup(id string) *Gate {
	if id == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cg, ok := s.gates[id]
	if !ok {
		return nil
	}
	cg.seen = s.now()
	return cg.gate
}

// Gate returns the client's gate, creating a locked one on first use.
func (s *Sessions) Gate(id string) *Gate {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	cg, ok := s.gates[id]
	if !ok {
		g := New(s.opts)
		g.now = s.now
		cg = &clientGate{gate: g}
		s.gates[id] = cg
	}
	cg.seen = now
	return cg.gate
}

// Active reports whether the client with id is in admin mode.
func (s *Sessions) Active(id string) bool {
	g := s.Lookup(id)
	return g != nil && g.Active()
}

// Len is the number of tracked clients.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.gates)
}

// Cleanup forgets clients idle for longer than the TTL and returns how many
// were removed.
func (s *Sessions) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, cg := range s.gates {
		if now.Sub(cg.seen) > s.ttl {
			delete(s.gates, id)
			removed++
		}
	}
	return removed
}

// RunCleanup calls Cleanup every interval until ctx ends.
func (s *Sessions) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Cleanup()
		case <-ctx.Done():
			return
		}
	}
}
