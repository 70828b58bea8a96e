package tui

import (
	"context"

	"github.com/dukerupert/knightlife/internal/admin"
	"github.com/dukerupert/knightlife/internal/model"
	"github.com/dukerupert/knightlife/internal/screen"
	"github.com/dukerupert/knightlife/internal/view"
)

// pane adapts one screen controller to the terminal model.
type pane struct {
	name     string
	title    string
	noun     string
	fields   []string
	granted  string
	denied   string
	admin    *admin.Gate
	expanded int64

	load       func(ctx context.Context) screen.Outcome
	create     func(ctx context.Context, values []string) screen.Outcome
	remove     func(ctx context.Context, id int64) screen.Outcome
	cards      func(expanded int64) []view.Card
	refreshing func() bool
}

func eventsPane(c *screen.Controller[model.Event], gate *admin.Gate) *pane {
	return &pane{
		name:    screen.EventsScreen,
		title:   "Upcoming Events",
		noun:    "event",
		fields:  []string{"Frat", "Date", "Time", "Details"},
		granted: "Admin mode activated",
		denied:  "Incorrect password",
		admin:   gate,
		load:    c.LoadAll,
		create: func(ctx context.Context, v []string) screen.Outcome {
			return c.Create(ctx, model.Event{Frat: v[0], Date: v[1], Time: v[2], Details: v[3]})
		},
		remove: c.Delete,
		cards: func(int64) []view.Card {
			st := c.State()
			return view.EventCards(st.Items, st.Admin)
		},
		refreshing: func() bool { return c.State().Refreshing },
	}
}

func searchPane(c *screen.Controller[model.Frat], gate *admin.Gate) *pane {
	return &pane{
		name:    screen.SearchScreen,
		title:   "Frat Directory",
		noun:    "frat",
		fields:  []string{"Name", "Abbreviation", "Address", "Details"},
		granted: "Admin access granted",
		denied:  "Wrong password",
		admin:   gate,
		load:    c.LoadAll,
		create: func(ctx context.Context, v []string) screen.Outcome {
			return c.Create(ctx, model.Frat{Name: v[0], Abbreviation: v[1], Address: v[2], Details: v[3]})
		},
		remove: c.Delete,
		cards: func(expanded int64) []view.Card {
			st := c.State()
			return view.FratCards(st.Items, expanded, st.Admin)
		},
		refreshing: func() bool { return c.State().Refreshing },
	}
}
