package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/dukerupert/knightlife/internal/config"
	"github.com/dukerupert/knightlife/internal/logging"
	"github.com/dukerupert/knightlife/internal/model"
	"github.com/dukerupert/knightlife/internal/remote"
	"github.com/dukerupert/knightlife/internal/screen"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.LoadFile("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Database.Path = ":memory:"
	cfg.Refresh.Cron = ""
	cfg.Admin.EventsPassword = "scarlet"
	cfg.Admin.SearchPassword = "knight"
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config, notify func(screen.Summary)) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, logging.Discard(), notify)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestLocalBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backend.Kind = config.BackendLocal

	var mu sync.Mutex
	var summaries []screen.Summary
	a := newTestApp(t, cfg, func(s screen.Summary) {
		mu.Lock()
		summaries = append(summaries, s)
		mu.Unlock()
	})

	if a.Gate.TryGet() != nil {
		t.Fatal("backend should not exist before the host is ready")
	}
	if err := a.Ready(); err != nil {
		t.Fatalf("ready: %v", err)
	}

	ctx := context.Background()
	if out := a.Screens.Search.LoadAll(ctx); !out.Succeeded() {
		t.Fatalf("load = %+v", out)
	}

	if !a.SearchAdmin.Login("knight") {
		t.Fatal("login failed")
	}
	out := a.Screens.Search.Create(ctx, model.Frat{Name: "Alpha", Abbreviation: "AX", Address: "1 College Ave"})
	if !out.Succeeded() {
		t.Fatalf("create = %+v", out)
	}
	if got := a.Screens.Search.State().Items; len(got) != 1 || got[0].Name != "Alpha" {
		t.Errorf("items = %+v", got)
	}

	if out := a.Screens.Events.Create(ctx, model.Event{Frat: "AX"}); out.Kind != screen.Unauthorized {
		t.Errorf("events admin is separate, got %+v", out)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(summaries) == 0 {
		t.Error("expected change notifications")
	}
}

func TestSupabaseBackend(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		if r.Header.Get("apikey") != "anon" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":1,"frat":"Sigma","date":"Fri","time":"9pm"}]`))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Supabase.URL = srv.URL
	cfg.Supabase.AnonKey = "anon"
	if cfg.BackendKind() != config.BackendSupabase {
		t.Fatalf("kind = %q, want supabase", cfg.BackendKind())
	}

	a := newTestApp(t, cfg, nil)
	if err := a.Ready(); err != nil {
		t.Fatalf("ready: %v", err)
	}

	out := a.Screens.Events.LoadAll(context.Background())
	if !out.Succeeded() {
		t.Fatalf("load = %+v", out)
	}
	if got := a.Screens.Events.State().Items; len(got) != 1 || got[0].Frat != "Sigma" {
		t.Errorf("items = %+v", got)
	}
	if a.Gate.State() != remote.Ready {
		t.Errorf("gate = %v, want ready", a.Gate.State())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 1 || !strings.HasSuffix(paths[0], "/events") {
		t.Errorf("paths = %v", paths)
	}
}

func TestUnreachableSessionStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Supabase.URL = "https://example.supabase.co"
	cfg.Supabase.AnonKey = "anon"
	cfg.Session.RedisURL = "redis://127.0.0.1:1/0"

	a := newTestApp(t, cfg, nil)
	if err := a.Ready(); err != nil {
		t.Fatalf("ready: %v", err)
	}

	ctx := context.Background()
	out := a.Screens.Events.LoadAll(ctx)
	if out.Kind != screen.ConnectionError {
		t.Fatalf("kind = %v, want connection error", out.Kind)
	}
	if len(a.Screens.Events.State().Items) != 0 {
		t.Error("items should stay empty")
	}
	if a.Gate.State() != remote.Failed {
		t.Errorf("gate = %v, want failed", a.Gate.State())
	}

	a.Screens.Events.LoadAll(ctx)
	if a.Gate.Attempts() != 2 {
		t.Errorf("attempts = %d, want a retry", a.Gate.Attempts())
	}
}

func TestInvalidSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Refresh.Cron = "not a schedule"
	if _, err := New(context.Background(), cfg, logging.Discard(), nil); err == nil {
		t.Error("expected error for an invalid schedule")
	}
}

type countingStore struct {
	mu     sync.Mutex
	closed int
}

func (s *countingStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	return "", false, nil
}

func (s *countingStore) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return nil
}

func (s *countingStore) closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestSessionStoreClosedWhenClientFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Supabase.URL = "no-scheme"
	cfg.Supabase.AnonKey = "anon"
	cfg.Session.RedisURL = "redis://cache:6379/0"

	a := newTestApp(t, cfg, nil)
	var opened []*countingStore
	a.openRedis = func(ctx context.Context, url, prefix string) (sessionStore, error) {
		s := &countingStore{}
		opened = append(opened, s)
		return s, nil
	}
	if err := a.Ready(); err != nil {
		t.Fatalf("ready: %v", err)
	}

	ctx := context.Background()
	a.Screens.Events.LoadAll(ctx)
	a.Screens.Events.LoadAll(ctx)

	if len(opened) != 2 {
		t.Fatalf("opened = %d, want 2", len(opened))
	}
	for i, s := range opened {
		if s.closes() != 1 {
			t.Errorf("store %d closed %d times, want 1", i, s.closes())
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.redis != nil {
		t.Error("app should not hold a store after a failed construct")
	}
}
