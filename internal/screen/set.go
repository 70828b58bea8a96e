package screen

import (
	"log/slog"
	"time"

	"github.com/dukerupert/knightlife/internal/model"
	"github.com/dukerupert/knightlife/internal/remote"
)

const (
	EventsScreen = "events"
	SearchScreen = "search"

	fratFieldsMessage = "Please fill out name, abbreviation, and address"
)

// Summary is the part of a screen's state worth pushing to other clients.
type Summary struct {
	Screen     string
	Count      int
	Refreshing bool
	Admin      bool
}

// SetConfig wires the application's screens to shared dependencies.
type SetConfig struct {
	Gate         Acquirer
	EventsAdmin  AdminMode
	SearchAdmin  AdminMode
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger
	// Notify is called after every state change of any screen.
	Notify func(Summary)
}

// Set is the events screen and the fraternity directory.
type Set struct {
	Events *Controller[model.Event]
	Search *Controller[model.Frat]
}

func NewSet(cfg SetConfig) Set {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return Set{
		Events: New(Config[model.Event]{
			Name:         EventsScreen,
			Noun:         "event",
			Table:        model.EventsTable,
			Order:        remote.Order{Column: "id", Ascending: false},
			Gate:         cfg.Gate,
			Admin:        cfg.EventsAdmin,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			Logger:       logger,
			OnChange:     notifier[model.Event](EventsScreen, cfg.Notify),
		}),
		Search: New(Config[model.Frat]{
			Name:           SearchScreen,
			Noun:           "frat",
			Table:          model.FratsTable,
			Order:          remote.Order{Column: "name", Ascending: true},
			Gate:           cfg.Gate,
			Admin:          cfg.SearchAdmin,
			Validate:       model.Frat.Validate,
			InvalidMessage: fratFieldsMessage,
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			Logger:         logger,
			OnChange:       notifier[model.Frat](SearchScreen, cfg.Notify),
		}),
	}
}

func notifier[E model.Record](name string, notify func(Summary)) func(State[E]) {
	if notify == nil {
		return nil
	}
	return func(s State[E]) {
		notify(Summary{Screen: name, Count: len(s.Items), Refreshing: s.Refreshing, Admin: s.Admin})
	}
}

// Unmount tears down both screens.
func (s Set) Unmount() {
	s.Events.Unmount()
	s.Search.Unmount()
}
