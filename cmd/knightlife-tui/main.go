package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dukerupert/knightlife/internal/app"
	"github.com/dukerupert/knightlife/internal/config"
	"github.com/dukerupert/knightlife/internal/logging"
	"github.com/dukerupert/knightlife/internal/tui"
)

func main() {
	key := flag.String("key", "", "launch key that reveals the admin password prompt")
	flag.Parse()

	if err := run(*key); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(launchKey string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	logFile, err := os.OpenFile(cfg.TUI.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	logger := logging.New(logFile, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	m := tui.New(ctx, tui.Options{
		Screens:     a.Screens,
		EventsAdmin: a.EventsAdmin,
		SearchAdmin: a.SearchAdmin,
		Affordance:  a.Affordance,
		LaunchKey:   launchKey,
		Ready: func() {
			if err := a.Ready(); err != nil {
				logger.Error("start schedule", "error", err)
			}
		},
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
