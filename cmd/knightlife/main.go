package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/knightlife/internal/app"
	"github.com/dukerupert/knightlife/internal/config"
	"github.com/dukerupert/knightlife/internal/logging"
	"github.com/dukerupert/knightlife/internal/screen"
	"github.com/dukerupert/knightlife/internal/server"
	ws "github.com/dukerupert/knightlife/internal/websocket"
)

func main() {
	writeConfig := flag.String("write-config", "", "write the effective configuration to this path and exit")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration:\n%v\n", err)
		os.Exit(1)
	}
	if *writeConfig != "" {
		if err := config.Save(*writeConfig, cfg); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", *writeConfig)
		return
	}

	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)
	if err := run(cfg, logger); err != nil {
		logger.Error("knightlife stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := ws.NewHub(logger.With("component", "websocket"))
	a, err := app.New(ctx, cfg, logger, func(s screen.Summary) {
		hub.Broadcast(ws.Reloaded(s.Screen, s.Count, s.Refreshing, s.Admin))
	})
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(server.Options{
		Screens:        a.Screens,
		EventsAdmin:    a.EventsSessions,
		SearchAdmin:    a.SearchSessions,
		Affordance:     a.Affordance,
		Gate:           a.Gate,
		Ready:          a.Barrier,
		Hub:            hub,
		OriginPatterns: cfg.Server.OriginPatterns,
		Logger:         logger,
	})
	go srv.RateLimiter().RunCleanup(ctx, 5*time.Minute)
	go a.RunSessionCleanup(ctx, 10*time.Minute)

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}

	httpServer := &http.Server{
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: writeTimeout(cfg),
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("knightlife running", "addr", ln.Addr().String(), "backend", cfg.BackendKind())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// The listener is up; the backend may now be constructed.
	if err := a.Ready(); err != nil {
		return err
	}
	go func() {
		if failed := a.Scheduler.RunOnce(ctx); failed > 0 {
			logger.Warn("initial load incomplete", "failed", failed)
		}
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// writeTimeout leaves room for a create, which may run a backend write and
// the reload that follows it, before the response is cut off.
func writeTimeout(cfg config.Config) time.Duration {
	return cfg.Backend.WriteTimeout + cfg.Backend.ReadTimeout + 5*time.Second
}
