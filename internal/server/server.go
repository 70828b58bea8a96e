package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/knightlife/internal/admin"
	"github.com/dukerupert/knightlife/internal/handler"
	"github.com/dukerupert/knightlife/internal/middleware"
	"github.com/dukerupert/knightlife/internal/model"
	"github.com/dukerupert/knightlife/internal/remote"
	"github.com/dukerupert/knightlife/internal/screen"
	ws "github.com/dukerupert/knightlife/internal/websocket"
)

// adminLimit is the number of login or tap requests per IP and route.
const (
	adminLimit  = 10
	adminWindow = time.Minute
)

// Readiness is the host-ready signal reported by /health.
type Readiness interface {
	Released() bool
}

type Options struct {
	Screens        screen.Set
	EventsAdmin    *admin.Sessions
	SearchAdmin    *admin.Sessions
	Affordance     admin.Affordance
	Gate           *remote.Gate
	Ready          Readiness
	Hub            *ws.Hub
	OriginPatterns []string
	Logger         *slog.Logger
}

type Server struct {
	opts        Options
	hub         *ws.Hub
	eventsH     *handler.Screen[model.Event]
	searchH     *handler.Screen[model.Frat]
	pageH       *handler.Page
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(opts Options) *Server {
	logger := opts.Logger
	hub := opts.Hub
	if hub == nil {
		hub = ws.NewHub(logger.With("component", "websocket"))
	}

	return &Server{
		opts: opts,
		hub:  hub,
		eventsH: handler.NewScreen(opts.Screens.Events, opts.EventsAdmin, opts.Affordance,
			handler.LoginNotices{Granted: "Admin mode activated", Denied: "Incorrect password"},
			logger.With("component", "events")),
		searchH: handler.NewScreen(opts.Screens.Search, opts.SearchAdmin, opts.Affordance,
			handler.LoginNotices{Granted: "Admin access granted", Denied: "Wrong password"},
			logger.With("component", "search")),
		pageH: handler.NewPage(opts.Screens.Events, opts.EventsAdmin, opts.Screens.Search, opts.SearchAdmin,
			opts.Affordance, logger.With("component", "page")),
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// Hub returns the websocket hub screens push their changes to.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.Handler(s.hub, s.opts.OriginPatterns, s.logger.With("component", "websocket")))

	limitAdmin := middleware.RateLimit(s.rateLimiter, middleware.ByIPAndPath, adminLimit, adminWindow)
	s.eventsH.Register(mux, limitAdmin)
	s.searchH.Register(mux, limitAdmin)

	mux.HandleFunc("GET /{$}", s.pageH.Home)
	mux.HandleFunc("GET /events", s.pageH.Events)
	mux.HandleFunc("GET /search", s.pageH.Search)

	var h http.Handler = mux
	h = middleware.Recover(s.logger.With("component", "recover"))(h)
	h = middleware.RequestLogger(s.logger.With("component", "http"))(h)
	h = middleware.RequestID(h)
	return h
}

type healthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
	Ready   bool   `json:"host_ready"`
	Clients int    `json:"clients"`
}

// healthHandler answers ok whatever the backend state is.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Backend: remote.Uninitialized.String(),
		Ready:   true,
		Clients: s.hub.ClientCount(),
	}
	if s.opts.Gate != nil {
		resp.Backend = s.opts.Gate.State().String()
	}
	if s.opts.Ready != nil {
		resp.Ready = s.opts.Ready.Released()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
