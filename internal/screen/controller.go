// Package screen implements the list screen controller shared by the events
// and directory screens. Every operation fails soft: backend faults end as an
// empty list or an Outcome, never as a panic or returned error.
package screen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukerupert/knightlife/internal/model"
	"github.com/dukerupert/knightlife/internal/remote"
)

const (
	DefaultReadTimeout  = 10 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// Acquirer hands out the shared backend handle. *remote.Gate implements it.
type Acquirer interface {
	Acquire(ctx context.Context) remote.Backend
}

// AdminMode reports whether writes are allowed. *admin.Gate implements it.
type AdminMode interface {
	Active() bool
}

type adminKey struct{}

type adminValue struct{ mode AdminMode }

// WithAdmin scopes admin mode to calls made with ctx. It takes precedence
// over Config.Admin; a nil mode means not in admin mode.
func WithAdmin(ctx context.Context, mode AdminMode) context.Context {
	return context.WithValue(ctx, adminKey{}, adminValue{mode})
}

type Config[E model.Record] struct {
	// Name identifies the screen in logs, routes, and push messages.
	Name string
	// Noun is the record noun used in notices, e.g. "frat".
	Noun  string
	Table string
	Order remote.Order

	Gate  Acquirer
	Admin AdminMode

	// Validate runs before any network call on create. InvalidMessage
	// replaces its error text in the Outcome when set.
	Validate       func(E) error
	InvalidMessage string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger

	// OnChange receives a snapshot after every state update while mounted.
	OnChange func(State[E])
}

// State is a snapshot of what the screen renders. Items is never nil.
type State[E model.Record] struct {
	Items      []E  `json:"items"`
	Refreshing bool `json:"refreshing"`
	Draft      E    `json:"draft"`
	Admin      bool `json:"admin"`
}

type Controller[E model.Record] struct {
	cfg    Config[E]
	logger *slog.Logger

	mounted atomic.Bool

	mu    sync.Mutex
	items []E
	loads int
	draft E
}

func New[E model.Record](cfg Config[E]) *Controller[E] {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Noun == "" {
		cfg.Noun = "record"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller[E]{
		cfg:    cfg,
		logger: logger.With("screen", cfg.Name),
		items:  []E{},
	}
	c.mounted.Store(true)
	return c
}

func (c *Controller[E]) Name() string { return c.cfg.Name }

// State returns the current snapshot.
func (c *Controller[E]) State() State[E] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller[E]) snapshotLocked() State[E] {
	return State[E]{
		Items:      append([]E{}, c.items...),
		Refreshing: c.loads > 0,
		Draft:      c.draft,
		Admin:      c.adminActive(),
	}
}

// Mounted reports whether the controller still accepts state updates.
func (c *Controller[E]) Mounted() bool { return c.mounted.Load() }

// Unmount stops all further state updates and discards the draft. Requests
// already in flight run to completion but their results are dropped.
func (c *Controller[E]) Unmount() {
	c.mu.Lock()
	c.mounted.Store(false)
	var zero E
	c.draft = zero
	c.mu.Unlock()
}

// update applies fn under the lock unless the screen is unmounted.
func (c *Controller[E]) update(fn func()) {
	c.mu.Lock()
	if !c.mounted.Load() {
		c.mu.Unlock()
		return
	}
	fn()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if c.cfg.OnChange != nil {
		c.cfg.OnChange(snap)
	}
}

func (c *Controller[E]) adminActive() bool {
	return c.cfg.Admin != nil && c.cfg.Admin.Active()
}

// adminFor is the admin mode of the caller behind ctx.
func (c *Controller[E]) adminFor(ctx context.Context) bool {
	if v, ok := ctx.Value(adminKey{}).(adminValue); ok {
		return v.mode != nil && v.mode.Active()
	}
	return c.adminActive()
}

func (c *Controller[E]) acquire(ctx context.Context) remote.Backend {
	if c.cfg.Gate == nil {
		return nil
	}
	return c.cfg.Gate.Acquire(ctx)
}

// SetDraft replaces the held create-form draft.
func (c *Controller[E]) SetDraft(draft E) {
	c.update(func() { c.draft = draft })
}

// Draft returns the held create-form draft.
func (c *Controller[E]) Draft() E {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// LoadAll replaces the visible list with a fresh read. Any failure leaves
// the list empty. The refreshing flag is set for the duration of the call.
func (c *Controller[E]) LoadAll(ctx context.Context) (out Outcome) {
	c.update(func() { c.loads++ })
	defer c.update(func() { c.loads-- })
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("load panicked", "panic", r)
			c.setItems(nil)
			out = Outcome{Kind: Unexpected, Message: msgUnexpected}
		}
	}()

	backend := c.acquire(ctx)
	if backend == nil {
		c.logger.Warn("backend not available, showing empty list")
		c.setItems(nil)
		return Outcome{Kind: ConnectionError, Message: msgConnectionError}
	}

	data, err := within(ctx, c.cfg.ReadTimeout, func(ctx context.Context) (json.RawMessage, error) {
		return backend.Select(ctx, c.cfg.Table, c.cfg.Order)
	})
	if err != nil {
		c.logger.Warn("load failed", "table", c.cfg.Table, "error", err)
		c.setItems(nil)
		return Outcome{Kind: BackendError, Message: remote.Message(err, msgUnknownError)}
	}

	items := decodeList[E](data, c.logger)
	c.setItems(items)
	c.logger.Debug("loaded", "table", c.cfg.Table, "count", len(items))
	return Outcome{Kind: OK}
}

func (c *Controller[E]) setItems(items []E) {
	if items == nil {
		items = []E{}
	}
	c.update(func() { c.items = items })
}

// Create inserts draft and reloads the list. Nothing is sent unless admin
// mode is on and the draft validates.
func (c *Controller[E]) Create(ctx context.Context, draft E) (out Outcome) {
	defer c.recoverWrite("create", &out)

	if !c.adminFor(ctx) {
		return Outcome{Kind: Unauthorized, Message: msgUnauthorized}
	}
	if c.cfg.Validate != nil {
		if err := c.cfg.Validate(draft); err != nil {
			msg := c.cfg.InvalidMessage
			if msg == "" {
				msg = err.Error()
			}
			return Outcome{Kind: Invalid, Message: msg}
		}
	}

	backend := c.acquire(ctx)
	if backend == nil {
		return Outcome{Kind: ConnectionError, Message: msgConnectionError}
	}

	_, err := within(ctx, c.cfg.WriteTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, backend.Insert(ctx, c.cfg.Table, draft)
	})
	if err != nil {
		c.logger.Warn("insert failed", "table", c.cfg.Table, "error", err)
		return Outcome{
			Kind:    BackendError,
			Message: fmt.Sprintf("Error adding %s: %s", c.cfg.Noun, remote.Message(err, msgUnknownError)),
		}
	}

	var zero E
	c.update(func() { c.draft = zero })
	c.LoadAll(ctx)
	return Outcome{Kind: OK}
}

// Submit creates a record from the held draft.
func (c *Controller[E]) Submit(ctx context.Context) Outcome {
	return c.Create(ctx, c.Draft())
}

// Delete removes the record with the given id and reloads the list.
func (c *Controller[E]) Delete(ctx context.Context, id int64) (out Outcome) {
	defer c.recoverWrite("delete", &out)

	if !c.adminFor(ctx) {
		return Outcome{Kind: Unauthorized, Message: msgUnauthorized}
	}
	if id == 0 {
		return Outcome{Kind: Invalid, Message: fmt.Sprintf("Invalid %s ID", c.cfg.Noun)}
	}

	backend := c.acquire(ctx)
	if backend == nil {
		return Outcome{Kind: ConnectionError, Message: msgConnectionError}
	}

	_, err := within(ctx, c.cfg.WriteTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, backend.Delete(ctx, c.cfg.Table, "id", id)
	})
	if err != nil {
		c.logger.Warn("delete failed", "table", c.cfg.Table, "id", id, "error", err)
		return Outcome{
			Kind:    BackendError,
			Message: fmt.Sprintf("Error deleting %s: %s", c.cfg.Noun, remote.Message(err, msgUnknownError)),
		}
	}

	c.LoadAll(ctx)
	return Outcome{Kind: OK}
}

func (c *Controller[E]) recoverWrite(op string, out *Outcome) {
	if r := recover(); r != nil {
		c.logger.Error(op+" panicked", "panic", r)
		*out = Outcome{Kind: Unexpected, Message: msgUnexpected}
	}
}

var errTimeout = errors.New("request timed out")

// within runs fn against a deadline. fn runs on its own goroutine so a
// backend that ignores ctx still loses the race; its late result is dropped.
func within[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("backend panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		ch <- result{val: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", errTimeout, timeout)
		}
		return zero, ctx.Err()
	}
}

// decodeList keeps the elements of data that decode into E. Data that is
// not an array yields an empty list.
func decodeList[E model.Record](data json.RawMessage, logger *slog.Logger) []E {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		if len(bytes.TrimSpace(data)) > 0 && !bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
			logger.Warn("response is not an array", "error", err)
		}
		return []E{}
	}

	items := make([]E, 0, len(raw))
	dropped := 0
	for _, elem := range raw {
		elem = bytes.TrimSpace(elem)
		if len(elem) == 0 || elem[0] != '{' {
			dropped++
			continue
		}
		var item E
		if err := json.Unmarshal(elem, &item); err != nil {
			dropped++
			continue
		}
		items = append(items, item)
	}
	if dropped > 0 {
		logger.Debug("dropped malformed records", "count", dropped)
	}
	return items
}
