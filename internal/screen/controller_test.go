package screen

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/knightlife/internal/admin"
	"github.com/dukerupert/knightlife/internal/logging"
	"github.com/dukerupert/knightlife/internal/model"
	"github.com/dukerupert/knightlife/internal/remote"
	"github.com/dukerupert/knightlife/internal/remote/remotetest"
)

type staticGate struct{ backend remote.Backend }

func (g staticGate) Acquire(ctx context.Context) remote.Backend { return g.backend }

type adminFlag bool

func (a adminFlag) Active() bool { return bool(a) }

func newFrats(fake *remotetest.Fake, isAdmin bool) *Controller[model.Frat] {
	var backend remote.Backend
	if fake != nil {
		backend = fake
	}
	return New(Config[model.Frat]{
		Name:           "search",
		Noun:           "frat",
		Table:          model.FratsTable,
		Order:          remote.Order{Column: "name", Ascending: true},
		Gate:           staticGate{backend},
		Admin:          adminFlag(isAdmin),
		Validate:       model.Frat.Validate,
		InvalidMessage: "Please fill out name, abbreviation, and address",
		ReadTimeout:    50 * time.Millisecond,
		WriteTimeout:   50 * time.Millisecond,
		Logger:         logging.Discard(),
	})
}

func newEvents(fake *remotetest.Fake, adminMode AdminMode) *Controller[model.Event] {
	return New(Config[model.Event]{
		Name:   "events",
		Noun:   "event",
		Table:  model.EventsTable,
		Order:  remote.Order{Column: "id"},
		Gate:   staticGate{fake},
		Admin:  adminMode,
		Logger: logging.Discard(),
	})
}

func TestLoadAllSuccess(t *testing.T) {
	fake := remotetest.New()
	fake.Set(model.FratsTable, `[{"id":1,"name":"Alpha","abbreviation":"A","address":"1 College Ave"}]`)
	c := newFrats(fake, false)

	out := c.LoadAll(context.Background())
	if out.Kind != OK {
		t.Fatalf("kind = %v, want ok", out.Kind)
	}
	st := c.State()
	if len(st.Items) != 1 || st.Items[0].Name != "Alpha" {
		t.Errorf("items = %+v", st.Items)
	}
	if st.Refreshing {
		t.Error("refreshing should be cleared")
	}
	if got := fake.LastOrder(); got.Column != "name" || !got.Ascending {
		t.Errorf("order = %+v, want name asc", got)
	}
}

func TestLoadAllFailsSoft(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	faults := map[string]func(ctx context.Context, table string, order remote.Order) (json.RawMessage, error){
		"panic": func(ctx context.Context, table string, order remote.Order) (json.RawMessage, error) {
			panic("boom")
		},
		"timeout": func(ctx context.Context, table string, order remote.Order) (json.RawMessage, error) {
			// Ignores ctx on purpose.
			<-release
			return json.RawMessage(`[{"id":9}]`), nil
		},
		"error": func(ctx context.Context, table string, order remote.Order) (json.RawMessage, error) {
			return json.RawMessage(`null`), &remote.APIError{Code: "42P01", Message: "relation does not exist"}
		},
	}

	for name, fault := range faults {
		t.Run(name, func(t *testing.T) {
			fake := remotetest.New()
			fake.Set(model.FratsTable, `[{"id":1,"name":"Seeded"}]`)
			c := newFrats(fake, false)
			c.LoadAll(context.Background())
			if len(c.State().Items) != 1 {
				t.Fatal("seed load failed")
			}

			fake.SelectFunc = fault
			out := c.LoadAll(context.Background())
			if out.Kind == OK {
				t.Errorf("kind = ok, want failure")
			}

			st := c.State()
			if st.Items == nil || len(st.Items) != 0 {
				t.Errorf("items = %#v, want empty non-nil", st.Items)
			}
			if st.Refreshing {
				t.Error("refreshing should be cleared")
			}
		})
	}
}

func TestLoadAllNoBackend(t *testing.T) {
	c := newFrats(nil, false)

	out := c.LoadAll(context.Background())
	if out.Kind != ConnectionError {
		t.Errorf("kind = %v, want connection_error", out.Kind)
	}
	st := c.State()
	if st.Items == nil || len(st.Items) != 0 || st.Refreshing {
		t.Errorf("state = %+v", st)
	}
}

func TestLoadAllNonArray(t *testing.T) {
	for _, payload := range []string{`null`, `{"id":1,"name":"A"}`, `"text"`, ``} {
		fake := remotetest.New()
		fake.Set(model.FratsTable, payload)
		c := newFrats(fake, false)

		c.LoadAll(context.Background())
		if st := c.State(); st.Items == nil || len(st.Items) != 0 {
			t.Errorf("payload %q: items = %#v, want []", payload, st.Items)
		}
	}
}

func TestLoadAllDropsMalformed(t *testing.T) {
	fake := remotetest.New()
	fake.Set(model.FratsTable, `[{"id":1,"name":"A"}, null, "garbage", {"id":2,"name":"B"}, {"id":"x"}, 7]`)
	c := newFrats(fake, false)

	c.LoadAll(context.Background())
	items := c.State().Items
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(items), items)
	}
	if items[0].ID != 1 || items[0].Name != "A" || items[1].ID != 2 || items[1].Name != "B" {
		t.Errorf("items = %+v", items)
	}
}

func TestRefreshingDuringLoad(t *testing.T) {
	fake := remotetest.New()
	entered := make(chan struct{})
	release := make(chan struct{})
	fake.SelectFunc = func(ctx context.Context, table string, order remote.Order) (json.RawMessage, error) {
		close(entered)
		<-release
		return json.RawMessage(`[]`), nil
	}
	c := newFrats(fake, false)
	c.cfg.ReadTimeout = time.Second

	done := make(chan struct{})
	go func() {
		c.LoadAll(context.Background())
		close(done)
	}()

	<-entered
	if !c.State().Refreshing {
		t.Error("refreshing should be set while loading")
	}
	close(release)
	<-done
	if c.State().Refreshing {
		t.Error("refreshing should be cleared after load")
	}
}

func TestWritesShortCircuitWithoutAdmin(t *testing.T) {
	fake := remotetest.New()
	c := newFrats(fake, false)
	ctx := context.Background()

	valid := model.Frat{Name: "A", Abbreviation: "A", Address: "X"}
	if out := c.Create(ctx, valid); out.Kind != Unauthorized || out.Message != "Unauthorized" {
		t.Errorf("create = %+v", out)
	}
	if out := c.Create(ctx, model.Frat{}); out.Kind != Unauthorized {
		t.Errorf("create invalid = %+v", out)
	}
	if out := c.Delete(ctx, 1); out.Kind != Unauthorized {
		t.Errorf("delete = %+v", out)
	}
	if out := c.Delete(ctx, 0); out.Kind != Unauthorized {
		t.Errorf("delete zero = %+v", out)
	}
	if fake.Calls() != 0 {
		t.Errorf("calls = %d, want 0", fake.Calls())
	}
}

func TestCreateValidation(t *testing.T) {
	fake := remotetest.New()
	c := newFrats(fake, true)

	out := c.Create(context.Background(), model.Frat{Name: "A", Abbreviation: " ", Address: "X"})
	if out.Kind != Invalid || out.Message != "Please fill out name, abbreviation, and address" {
		t.Errorf("out = %+v", out)
	}
	if fake.Calls() != 0 {
		t.Errorf("calls = %d, want 0", fake.Calls())
	}
}

func TestCreateReloadsOnce(t *testing.T) {
	fake := remotetest.New()
	fake.Set(model.FratsTable, `[{"id":5,"name":"New"}]`)
	c := newFrats(fake, true)
	c.SetDraft(model.Frat{Name: "New", Abbreviation: "N", Address: "X"})

	out := c.Submit(context.Background())
	if out.Kind != OK {
		t.Fatalf("out = %+v", out)
	}
	if got := fake.Selects(); got != 1 {
		t.Errorf("selects = %d, want 1", got)
	}
	inserted := fake.Inserted()
	if len(inserted) != 1 || inserted[0].(model.Frat).Name != "New" {
		t.Errorf("inserted = %+v", inserted)
	}
	st := c.State()
	if st.Draft != (model.Frat{}) {
		t.Errorf("draft = %+v, want cleared", st.Draft)
	}
	if len(st.Items) != 1 || st.Items[0].ID != 5 {
		t.Errorf("items = %+v", st.Items)
	}
}

func TestCreateBackendError(t *testing.T) {
	fake := remotetest.New()
	fake.InsertFunc = func(ctx context.Context, table string, records ...any) error {
		return &remote.APIError{Code: "23505", Message: "duplicate key"}
	}
	c := newFrats(fake, true)
	draft := model.Frat{Name: "A", Abbreviation: "A", Address: "X"}
	c.SetDraft(draft)

	out := c.Submit(context.Background())
	if out.Kind != BackendError || out.Message != "Error adding frat: duplicate key" {
		t.Errorf("out = %+v", out)
	}
	if fake.Selects() != 0 {
		t.Error("failed create should not reload")
	}
	if c.Draft() != draft {
		t.Error("draft should be kept after a failed create")
	}
}

func TestCreateBackendErrorWithoutMessage(t *testing.T) {
	fake := remotetest.New()
	fake.InsertFunc = func(ctx context.Context, table string, records ...any) error {
		return &remote.APIError{Status: 500}
	}
	c := newFrats(fake, true)

	out := c.Create(context.Background(), model.Frat{Name: "A", Abbreviation: "A", Address: "X"})
	if out.Message != "Error adding frat: Unknown error" {
		t.Errorf("message = %q", out.Message)
	}
}

func TestCreateNoBackend(t *testing.T) {
	c := newFrats(nil, true)
	out := c.Create(context.Background(), model.Frat{Name: "A", Abbreviation: "A", Address: "X"})
	if out.Kind != ConnectionError || out.Message != "Database connection error" {
		t.Errorf("out = %+v", out)
	}
}

func TestWritePanicIsUnexpected(t *testing.T) {
	fake := remotetest.New()
	fake.DeleteFunc = func(ctx context.Context, table, column string, value any) error {
		panic("driver exploded")
	}
	c := newFrats(fake, true)

	out := c.Delete(context.Background(), 3)
	if out.Kind == OK {
		t.Errorf("out = %+v, want failure", out)
	}
}

func TestWriteTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	fake := remotetest.New()
	fake.InsertFunc = func(ctx context.Context, table string, records ...any) error {
		<-release
		return nil
	}
	c := newFrats(fake, true)

	out := c.Create(context.Background(), model.Frat{Name: "A", Abbreviation: "A", Address: "X"})
	if out.Kind != BackendError || !strings.Contains(out.Message, "timed out") {
		t.Errorf("out = %+v", out)
	}
}

func TestDeleteInvalidID(t *testing.T) {
	fake := remotetest.New()
	c := newFrats(fake, true)

	out := c.Delete(context.Background(), 0)
	if out.Kind != Invalid || out.Message != "Invalid frat ID" {
		t.Errorf("out = %+v", out)
	}
	if fake.Calls() != 0 {
		t.Errorf("calls = %d, want 0", fake.Calls())
	}
}

func TestDeleteError(t *testing.T) {
	fake := remotetest.New()
	fake.DeleteFunc = func(ctx context.Context, table, column string, value any) error {
		return errors.New("connection reset")
	}
	c := newFrats(fake, true)

	out := c.Delete(context.Background(), 1)
	if out.Message != "Error deleting frat: connection reset" {
		t.Errorf("message = %q", out.Message)
	}
}

func TestEventsDeleteScenario(t *testing.T) {
	fake := remotetest.New()
	fake.Set(model.EventsTable, `[{"id":2,"frat":"AB","date":"Fri","time":"9pm","details":""},{"id":1,"frat":"CD","date":"Sat","time":"10pm","details":""}]`)
	gate := admin.New(admin.Options{Password: "scarlet"})
	c := newEvents(fake, gate)
	ctx := context.Background()

	c.LoadAll(ctx)
	items := c.State().Items
	if len(items) != 2 || items[0].ID != 2 || items[1].ID != 1 {
		t.Fatalf("items = %+v, want [2 1]", items)
	}
	if got := fake.LastOrder(); got.Column != "id" || got.Ascending {
		t.Errorf("order = %+v, want id desc", got)
	}

	if !gate.Login("scarlet") {
		t.Fatal("login failed")
	}
	before := fake.Selects()
	fake.Set(model.EventsTable, `[{"id":2,"frat":"AB"}]`)

	out := c.Delete(ctx, 1)
	if out.Kind != OK {
		t.Fatalf("delete = %+v", out)
	}
	if got := fake.Selects() - before; got != 1 {
		t.Errorf("reloads = %d, want 1", got)
	}
	if deleted := fake.Deleted(); len(deleted) != 1 || deleted[0] != int64(1) {
		t.Errorf("deleted = %v", deleted)
	}
	if items := c.State().Items; len(items) != 1 || items[0].ID != 2 {
		t.Errorf("items = %+v", items)
	}
}

// Overlapping loads are not serialized: whichever finishes last decides
// the visible list.
func TestConcurrentLoadsLastWins(t *testing.T) {
	fake := remotetest.New()
	slowStarted := make(chan struct{})
	releaseSlow := make(chan struct{})
	var calls int
	var mu sync.Mutex
	fake.SelectFunc = func(ctx context.Context, table string, order remote.Order) (json.RawMessage, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(slowStarted)
			<-releaseSlow
			return json.RawMessage(`[{"id":1,"name":"slow"}]`), nil
		}
		return json.RawMessage(`[{"id":2,"name":"fast"}]`), nil
	}
	c := newFrats(fake, false)
	c.cfg.ReadTimeout = time.Second

	done := make(chan struct{})
	go func() {
		c.LoadAll(context.Background())
		close(done)
	}()
	<-slowStarted

	c.LoadAll(context.Background())
	if items := c.State().Items; len(items) != 1 || items[0].Name != "fast" {
		t.Fatalf("items = %+v, want fast", items)
	}

	close(releaseSlow)
	<-done
	if items := c.State().Items; len(items) != 1 || items[0].Name != "slow" {
		t.Errorf("items = %+v, want slow (last to complete)", items)
	}
}

func TestUnmountSuppressesUpdates(t *testing.T) {
	fake := remotetest.New()
	entered := make(chan struct{})
	release := make(chan struct{})
	fake.SelectFunc = func(ctx context.Context, table string, order remote.Order) (json.RawMessage, error) {
		close(entered)
		<-release
		return json.RawMessage(`[{"id":1,"name":"late"}]`), nil
	}

	var changes int
	var mu sync.Mutex
	c := newFrats(fake, false)
	c.cfg.ReadTimeout = time.Second
	c.cfg.OnChange = func(State[model.Frat]) {
		mu.Lock()
		changes++
		mu.Unlock()
	}
	c.SetDraft(model.Frat{Name: "half typed"})

	done := make(chan struct{})
	go func() {
		c.LoadAll(context.Background())
		close(done)
	}()
	<-entered

	c.Unmount()
	mu.Lock()
	before := changes
	mu.Unlock()

	close(release)
	<-done

	mu.Lock()
	after := changes
	mu.Unlock()
	if after != before {
		t.Errorf("changes after unmount = %d, want 0", after-before)
	}
	if items := c.State().Items; len(items) != 0 {
		t.Errorf("items = %+v, want none after unmount", items)
	}
	if c.Draft() != (model.Frat{}) {
		t.Error("draft should be discarded on unmount")
	}
	if c.Mounted() {
		t.Error("should report unmounted")
	}
}

func TestOnChangeReceivesSnapshots(t *testing.T) {
	fake := remotetest.New()
	fake.Set(model.FratsTable, `[{"id":1,"name":"A"}]`)
	var last State[model.Frat]
	var sawRefreshing bool
	c := newFrats(fake, true)
	c.cfg.OnChange = func(s State[model.Frat]) {
		if s.Refreshing {
			sawRefreshing = true
		}
		last = s
	}

	c.LoadAll(context.Background())
	if !sawRefreshing {
		t.Error("expected a refreshing snapshot")
	}
	if last.Refreshing || len(last.Items) != 1 || !last.Admin {
		t.Errorf("last = %+v", last)
	}
}

func TestWithRealGate(t *testing.T) {
	fake := remotetest.New()
	fake.Set(model.EventsTable, `[{"id":1,"frat":"AB"}]`)
	gate := remote.NewGate(func(ctx context.Context) (remote.Backend, error) {
		return fake, nil
	}, remote.WithLogger(logging.Discard()))

	c := New(Config[model.Event]{
		Name:   "events",
		Table:  model.EventsTable,
		Order:  remote.Order{Column: "id"},
		Gate:   gate,
		Logger: logging.Discard(),
	})
	if out := c.LoadAll(context.Background()); out.Kind != OK {
		t.Fatalf("out = %+v", out)
	}
	if gate.State() != remote.Ready {
		t.Errorf("gate state = %v, want ready", gate.State())
	}
}

func TestOutcomeJSON(t *testing.T) {
	data, err := json.Marshal(Outcome{Kind: BackendError, Message: "x"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"kind":"backend_error","message":"x"}` {
		t.Errorf("json = %s", data)
	}
}

func TestAdminFromContext(t *testing.T) {
	fake := remotetest.New()
	fake.Set(model.FratsTable, `[]`)
	frat := model.Frat{Name: "Alpha", Abbreviation: "AX", Address: "1 College Ave"}

	locked := newFrats(fake, false)
	if out := locked.Create(WithAdmin(context.Background(), adminFlag(true)), frat); out.Kind != OK {
		t.Errorf("scoped admin create = %+v, want ok", out)
	}

	unlocked := newFrats(fake, true)
	ctx := WithAdmin(context.Background(), nil)
	if out := unlocked.Create(ctx, frat); out.Kind != Unauthorized {
		t.Errorf("create = %+v, want unauthorized", out)
	}
	if out := unlocked.Delete(ctx, 1); out.Kind != Unauthorized {
		t.Errorf("delete = %+v, want unauthorized", out)
	}
	if got := len(fake.Inserted()); got != 1 {
		t.Errorf("inserted = %d, want 1", got)
	}
}
