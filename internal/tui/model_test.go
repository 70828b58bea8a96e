package tui

import (
	"context"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dukerupert/knightlife/internal/admin"
	"github.com/dukerupert/knightlife/internal/logging"
	"github.com/dukerupert/knightlife/internal/model"
	"github.com/dukerupert/knightlife/internal/remote"
	"github.com/dukerupert/knightlife/internal/remote/remotetest"
	"github.com/dukerupert/knightlife/internal/screen"
)

func newTestModel(t *testing.T, opts Options) (Model, *remotetest.Fake) {
	t.Helper()
	fake := remotetest.New()
	fake.Set(model.EventsTable, `[{"id":7,"frat":"Sigma","date":"Fri","time":"9pm","details":""}]`)
	fake.Set(model.FratsTable, `[{"id":3,"name":"Alpha","abbreviation":"AX","address":"1 College Ave"}]`)

	gate := remote.NewGate(func(ctx context.Context) (remote.Backend, error) { return fake, nil },
		remote.WithLogger(logging.Discard()))
	if opts.EventsAdmin == nil {
		opts.EventsAdmin = admin.New(admin.Options{Password: "scarlet"})
	}
	if opts.SearchAdmin == nil {
		opts.SearchAdmin = admin.New(admin.Options{Password: "knight"})
	}
	opts.Screens = screen.NewSet(screen.SetConfig{
		Gate:        gate,
		EventsAdmin: opts.EventsAdmin,
		SearchAdmin: opts.SearchAdmin,
		Logger:      logging.Discard(),
	})

	m := New(context.Background(), opts)
	m = drain(t, m, m.loadCmd(0))
	m = drain(t, m, m.loadCmd(1))
	return m, fake
}

func runes(k string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func apply(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	got, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	return drain(t, got, cmd)
}

func drain(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	for i := 0; cmd != nil && i < 16; i++ {
		msg := cmd()
		if msg == nil {
			return m
		}
		if _, ok := msg.(tea.QuitMsg); ok {
			return m
		}
		next, nextCmd := m.Update(msg)
		m = next.(Model)
		cmd = nextCmd
	}
	return m
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		m = apply(t, m, runes(k))
	}
	return m
}

func typeText(t *testing.T, m Model, s string) Model {
	t.Helper()
	for _, r := range s {
		m = apply(t, m, runes(string(r)))
	}
	return m
}

func enter(t *testing.T, m Model) Model {
	t.Helper()
	return apply(t, m, tea.KeyMsg{Type: tea.KeyEnter})
}

func TestFirstWindowSizeReleasesHost(t *testing.T) {
	calls := 0
	m, _ := newTestModel(t, Options{Ready: func() { calls++ }})

	m = apply(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
	m = apply(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	if calls != 1 {
		t.Errorf("ready calls = %d, want 1", calls)
	}
	if m.width != 100 {
		t.Errorf("width = %d, want 100", m.width)
	}
}

func TestViewListsBothScreens(t *testing.T) {
	m, _ := newTestModel(t, Options{})

	if v := m.View(); !strings.Contains(v, "Sigma") || !strings.Contains(v, "Fri @ 9pm") {
		t.Errorf("events view missing card:\n%s", v)
	}

	m = apply(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.pane().name != screen.SearchScreen {
		t.Fatalf("active = %q, want search", m.pane().name)
	}
	v := m.View()
	if !strings.Contains(v, "Alpha") || !strings.Contains(v, "Known as AX") {
		t.Errorf("search view missing card:\n%s", v)
	}
	if strings.Contains(v, "No extra details provided yet") {
		t.Error("collapsed card should hide details")
	}

	m = enter(t, m)
	if !strings.Contains(m.View(), "No extra details provided yet") {
		t.Error("expanded card should show fallback details")
	}
}

func TestTapUnlockThenCreate(t *testing.T) {
	m, fake := newTestModel(t, Options{})

	m = press(t, m, "n")
	if m.mode != modeList {
		t.Fatal("create form should need admin mode")
	}

	m = press(t, m, "t", "t", "t", "t")
	if m.pane().admin.Active() {
		t.Fatal("four taps should not unlock")
	}
	m = press(t, m, "t")
	if m.status != "Admin mode activated" {
		t.Errorf("status = %q", m.status)
	}

	m = press(t, m, "n")
	if m.mode != modeCreate {
		t.Fatalf("mode = %v, want create", m.mode)
	}
	for _, v := range []string{"Delta", "Sat", "8pm", "Formal"} {
		m = typeText(t, m, v)
		m = enter(t, m)
	}

	if m.mode != modeList {
		t.Errorf("mode = %v, want list after submit", m.mode)
	}
	inserted := fake.Inserted()
	if len(inserted) != 1 {
		t.Fatalf("inserted = %d, want 1", len(inserted))
	}
	ev, ok := inserted[0].(model.Event)
	if !ok || ev.Frat != "Delta" || ev.Details != "Formal" {
		t.Errorf("inserted = %#v", inserted[0])
	}
	if m.statusErr {
		t.Errorf("unexpected error status %q", m.status)
	}
}

func TestCreateBackendError(t *testing.T) {
	m, fake := newTestModel(t, Options{})
	fake.InsertFunc = func(ctx context.Context, table string, records ...any) error {
		return &remote.APIError{Status: 409, Message: "duplicate key"}
	}
	m.pane().admin.Login("scarlet")

	m = press(t, m, "n")
	for range 4 {
		m = typeText(t, m, "x")
		m = enter(t, m)
	}
	if !m.statusErr || m.status != "Error adding event: duplicate key" {
		t.Errorf("status = %q (err=%v)", m.status, m.statusErr)
	}
}

func TestFratValidation(t *testing.T) {
	m, fake := newTestModel(t, Options{})
	m = apply(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m.pane().admin.Login("knight")

	m = press(t, m, "n")
	for range 4 {
		m = enter(t, m)
	}
	if m.status != "Please fill out name, abbreviation, and address" {
		t.Errorf("status = %q", m.status)
	}
	if len(fake.Inserted()) != 0 {
		t.Error("invalid frat should not be inserted")
	}
}

func TestPasswordPrompt(t *testing.T) {
	t.Run("hidden without affordance", func(t *testing.T) {
		m, _ := newTestModel(t, Options{})
		m = press(t, m, "p")
		if m.mode != modeList {
			t.Error("prompt should stay hidden")
		}
	})

	t.Run("per screen copy", func(t *testing.T) {
		m, _ := newTestModel(t, Options{Affordance: admin.Affordance{DevBuild: true}})
		m = apply(t, m, tea.KeyMsg{Type: tea.KeyTab})

		m = press(t, m, "p")
		if m.mode != modePassword {
			t.Fatalf("mode = %v, want password", m.mode)
		}
		m = typeText(t, m, "scarlet")
		if strings.Contains(m.View(), "scarlet") {
			t.Error("password should be masked")
		}
		m = enter(t, m)
		if m.status != "Wrong password" || !m.statusErr {
			t.Errorf("status = %q", m.status)
		}

		m = press(t, m, "p")
		m = typeText(t, m, "knight")
		m = enter(t, m)
		if m.status != "Admin access granted" || !m.pane().admin.Active() {
			t.Errorf("status = %q, admin = %v", m.status, m.pane().admin.Active())
		}
	})

	t.Run("launch key", func(t *testing.T) {
		m, _ := newTestModel(t, Options{Affordance: admin.Affordance{SecretKey: "k"}, LaunchKey: "k"})
		m = press(t, m, "p")
		if m.mode != modePassword {
			t.Error("matching launch key should show the prompt")
		}
		m = apply(t, m, tea.KeyMsg{Type: tea.KeyEsc})
		if m.mode != modeList {
			t.Error("esc should close the prompt")
		}
	})
}

func TestDeleteSelected(t *testing.T) {
	m, fake := newTestModel(t, Options{})

	m = press(t, m, "d")
	if len(fake.Deleted()) != 0 {
		t.Fatal("delete should need admin mode")
	}

	m.pane().admin.Login("scarlet")
	m = press(t, m, "d")
	deleted := fake.Deleted()
	if len(deleted) != 1 || fmt.Sprint(deleted[0]) != "7" {
		t.Errorf("deleted = %v, want [7]", deleted)
	}
}

func TestFratDeleteNeedsExpandedCard(t *testing.T) {
	m, fake := newTestModel(t, Options{})
	m = apply(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m.pane().admin.Login("knight")

	m = press(t, m, "d")
	if len(fake.Deleted()) != 0 {
		t.Fatal("collapsed frat should not be deletable")
	}

	m = enter(t, m)
	m = press(t, m, "d")
	if deleted := fake.Deleted(); len(deleted) != 1 || fmt.Sprint(deleted[0]) != "3" {
		t.Errorf("deleted = %v, want [3]", deleted)
	}
}

func TestRefreshReloadsActiveScreen(t *testing.T) {
	m, fake := newTestModel(t, Options{})
	before := fake.Selects()

	fake.Set(model.EventsTable, `[]`)
	m = press(t, m, "r")
	if fake.Selects() != before+1 {
		t.Errorf("selects = %d, want %d", fake.Selects(), before+1)
	}
	if !strings.Contains(m.View(), "No events added yet") {
		t.Error("expected empty state after refresh")
	}
}

func TestQuit(t *testing.T) {
	m, _ := newTestModel(t, Options{})
	_, cmd := m.Update(runes("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}
