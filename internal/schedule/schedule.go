// Package schedule reloads every screen on a cron schedule so lists stay
// fresh without a user pulling to refresh.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/dukerupert/knightlife/internal/screen"
)

// Loader is a screen that can reload its list.
type Loader interface {
	Name() string
	LoadAll(ctx context.Context) screen.Outcome
}

type Scheduler struct {
	spec    string
	loaders []Loader
	logger  *slog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// New validates spec, a standard five-field cron expression. An empty spec
// yields a scheduler whose Start does nothing.
func New(spec string, loaders []Loader, logger *slog.Logger) (*Scheduler, error) {
	if spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return nil, fmt.Errorf("parse refresh schedule %q: %w", spec, err)
		}
	}
	return &Scheduler{spec: spec, loaders: loaders, logger: logger}, nil
}

// Start runs the schedule until Stop or ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.spec == "" {
		s.logger.Info("scheduled refresh disabled")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	log := cronLogger{s.logger}
	c := cron.New(cron.WithLogger(log), cron.WithChain(
		cron.Recover(log),
		cron.SkipIfStillRunning(log),
	))
	if _, err := c.AddFunc(s.spec, func() { s.RunOnce(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule refresh: %w", err)
	}

	c.Start()
	s.cron, s.cancel = c, cancel
	s.logger.Info("scheduled refresh started", "schedule", s.spec, "screens", len(s.loaders))
	return nil
}

// Stop halts the schedule and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
}

// RunOnce reloads every screen in order and returns how many loads failed.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	failed := 0
	for _, l := range s.loaders {
		if ctx.Err() != nil {
			return failed
		}
		out := l.LoadAll(ctx)
		if out.Kind != screen.OK {
			failed++
			s.logger.Warn("scheduled refresh failed", "screen", l.Name(), "kind", out.Kind.String(), "message", out.Message)
		}
	}
	return failed
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
