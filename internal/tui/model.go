// Package tui is the terminal front-end for the events screen and the frat
// directory.
package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dukerupert/knightlife/internal/admin"
	"github.com/dukerupert/knightlife/internal/screen"
	"github.com/dukerupert/knightlife/internal/view"
)

type mode int

const (
	modeList mode = iota
	modePassword
	modeCreate
)

// Options wires the model to the application's screens.
type Options struct {
	Screens     screen.Set
	EventsAdmin *admin.Gate
	SearchAdmin *admin.Gate
	Affordance  admin.Affordance
	LaunchKey   string
	// Ready is called once, on the first window size message.
	Ready func()
}

// loadedMsg reports a finished read or write on pane index.
type loadedMsg struct {
	pane int
	op   string
	out  screen.Outcome
}

type Model struct {
	ctx    context.Context
	panes  []*pane
	active int
	cursor int
	mode   mode

	input  string
	values []string
	field  int

	status    string
	statusErr bool

	showLogin bool
	ready     func()
	sized     bool
	width     int
	height    int
}

func New(ctx context.Context, opts Options) Model {
	return Model{
		ctx: ctx,
		panes: []*pane{
			eventsPane(opts.Screens.Events, opts.EventsAdmin),
			searchPane(opts.Screens.Search, opts.SearchAdmin),
		},
		showLogin: admin.ShowLogin(opts.Affordance, opts.LaunchKey),
		ready:     opts.Ready,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadCmd(0), m.loadCmd(1))
}

func (m Model) pane() *pane { return m.panes[m.active] }

func (m Model) loadCmd(i int) tea.Cmd {
	p := m.panes[i]
	ctx := m.ctx
	return func() tea.Msg {
		return loadedMsg{pane: i, op: "load", out: p.load(ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.sized {
			m.sized = true
			if m.ready != nil {
				m.ready()
			}
		}
		return m, nil
	case loadedMsg:
		return m.handleLoaded(msg)
	case tea.KeyMsg:
		switch m.mode {
		case modePassword:
			return m.updatePassword(msg)
		case modeCreate:
			return m.updateCreate(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m Model) handleLoaded(msg loadedMsg) (tea.Model, tea.Cmd) {
	if n := len(m.pane().cards(m.pane().expanded)); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
	if msg.op == "load" && msg.pane != m.active {
		return m, nil
	}
	switch {
	case msg.out.Succeeded():
		if msg.op != "load" {
			m.setStatus("", false)
		}
	case msg.out.Kind == screen.ConnectionError && msg.op == "load":
		// Reads without a backend render the empty state.
	default:
		m.setStatus(msg.out.Message, true)
	}
	return m, nil
}

func (m *Model) setStatus(s string, isErr bool) {
	m.status = s
	m.statusErr = isErr
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.pane()
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "tab":
		m.active = (m.active + 1) % len(m.panes)
		m.cursor = 0
		m.status = ""
		return m, nil
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "j":
		if m.cursor < len(p.cards(p.expanded))-1 {
			m.cursor++
		}
		return m, nil
	case "enter":
		cards := p.cards(p.expanded)
		if m.cursor < len(cards) {
			p.expanded = view.Toggle(p.expanded, cards[m.cursor].ID)
		}
		return m, nil
	case "r":
		return m, m.loadCmd(m.active)
	case "t":
		if p.admin.Tap() {
			m.setStatus(p.granted, false)
		}
		return m, nil
	case "p":
		if m.showLogin && !p.admin.Active() {
			m.mode = modePassword
			m.input = ""
		}
		return m, nil
	case "n":
		if p.admin.Active() {
			m.mode = modeCreate
			m.values = make([]string, len(p.fields))
			m.field = 0
			m.input = ""
		}
		return m, nil
	case "d":
		return m, m.deleteSelected()
	case "l":
		if p.admin.Active() {
			p.admin.Lock()
			m.setStatus("Admin mode off", false)
		}
		return m, nil
	}
	return m, nil
}

func (m Model) deleteSelected() tea.Cmd {
	p := m.pane()
	if !p.admin.Active() {
		return nil
	}
	cards := p.cards(p.expanded)
	if m.cursor >= len(cards) || !cards[m.cursor].Deletable {
		return nil
	}
	id, i, ctx := cards[m.cursor].ID, m.active, m.ctx
	return func() tea.Msg {
		return loadedMsg{pane: i, op: "delete", out: p.remove(ctx, id)}
	}
}

func (m Model) updatePassword(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.mode = modeList
		m.input = ""
	case "enter":
		p := m.pane()
		if p.admin.Login(m.input) {
			m.setStatus(p.granted, false)
		} else {
			m.setStatus(p.denied, true)
		}
		m.mode = modeList
		m.input = ""
	default:
		m.input = typeInto(m.input, msg)
	}
	return m, nil
}

func (m Model) updateCreate(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.pane()
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.mode = modeList
		m.values = nil
		m.input = ""
	case "enter", "tab":
		m.values[m.field] = m.input
		m.input = ""
		if m.field < len(p.fields)-1 {
			m.field++
			m.input = m.values[m.field]
			return m, nil
		}
		values, i, ctx := m.values, m.active, m.ctx
		m.mode = modeList
		m.values = nil
		return m, func() tea.Msg {
			return loadedMsg{pane: i, op: "create", out: p.create(ctx, values)}
		}
	default:
		m.input = typeInto(m.input, msg)
	}
	return m, nil
}

// typeInto applies an editing key to s.
func typeInto(s string, msg tea.KeyMsg) string {
	switch msg.Type {
	case tea.KeyBackspace:
		if len(s) > 0 {
			r := []rune(s)
			return string(r[:len(r)-1])
		}
		return s
	case tea.KeySpace:
		return s + " "
	case tea.KeyRunes:
		return s + string(msg.Runes)
	}
	return s
}
