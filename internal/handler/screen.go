package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/knightlife/internal/admin"
	"github.com/dukerupert/knightlife/internal/model"
	"github.com/dukerupert/knightlife/internal/screen"
)

// LoginNotices is the copy returned by the admin login endpoint.
type LoginNotices struct {
	Granted string
	Denied  string
}

// Screen serves the JSON API of one list screen. Admin mode is tracked per
// client cookie.
type Screen[E model.Record] struct {
	ctrl       *screen.Controller[E]
	sessions   *admin.Sessions
	affordance admin.Affordance
	notices    LoginNotices
	logger     *slog.Logger
}

func NewScreen[E model.Record](ctrl *screen.Controller[E], sessions *admin.Sessions, affordance admin.Affordance, notices LoginNotices, logger *slog.Logger) *Screen[E] {
	if notices.Granted == "" {
		notices.Granted = "Admin mode activated"
	}
	if notices.Denied == "" {
		notices.Denied = "Incorrect password"
	}
	return &Screen[E]{ctrl: ctrl, sessions: sessions, affordance: affordance, notices: notices, logger: logger}
}

// Register mounts the screen's routes under /api/<name>. limit wraps the
// login and tap endpoints.
func (h *Screen[E]) Register(mux *http.ServeMux, limit func(http.Handler) http.Handler) {
	base := "/api/" + h.ctrl.Name()
	mux.HandleFunc("GET "+base, h.Get)
	mux.HandleFunc("POST "+base+"/refresh", h.Refresh)
	mux.HandleFunc("POST "+base, h.Create)
	mux.HandleFunc("DELETE "+base+"/{id}", h.Delete)
	mux.Handle("POST "+base+"/admin/login", limit(http.HandlerFunc(h.Login)))
	mux.Handle("POST "+base+"/admin/tap", limit(http.HandlerFunc(h.Tap)))
	mux.HandleFunc("GET "+base+"/admin/affordance", h.Affordance)
}

type stateResponse[E model.Record] struct {
	screen.State[E]
	Outcome *screen.Outcome `json:"outcome,omitempty"`
}

// state is the screen snapshot as the caller sees it. Drafts live in the
// client, so the shared one is never echoed.
func (h *Screen[E]) state(r *http.Request, out *screen.Outcome) stateResponse[E] {
	st := h.ctrl.State()
	var zero E
	st.Draft = zero
	st.Admin = h.sessions.Active(clientID(r))
	return stateResponse[E]{State: st, Outcome: out}
}

func (h *Screen[E]) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state(r, nil))
}

func (h *Screen[E]) Refresh(w http.ResponseWriter, r *http.Request) {
	out := h.ctrl.LoadAll(r.Context())
	// A failed load still renders: the list is simply empty.
	writeJSON(w, http.StatusOK, h.state(r, &out))
}

func (h *Screen[E]) Create(w http.ResponseWriter, r *http.Request) {
	var draft E
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	out := h.ctrl.Create(adminContext(r, h.sessions), draft)
	writeJSON(w, statusFor(out, http.StatusCreated), h.state(r, &out))
}

func (h *Screen[E]) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		// The controller reports a missing id after the admin check.
		id = 0
	}

	out := h.ctrl.Delete(adminContext(r, h.sessions), id)
	writeJSON(w, statusFor(out, http.StatusOK), h.state(r, &out))
}

type loginRequest struct {
	Password string `json:"password"`
}

// Login is only served while the login affordance is visible to the caller.
func (h *Screen[E]) Login(w http.ResponseWriter, r *http.Request) {
	if !admin.ShowLogin(h.affordance, r.URL.Query().Get("key")) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	gate := h.sessions.Gate(ensureClientID(w, r))
	if !gate.Login(req.Password) {
		h.logger.Info("admin login rejected", "screen", h.ctrl.Name())
		writeJSON(w, http.StatusUnauthorized, map[string]any{"admin": false, "message": h.notices.Denied})
		return
	}
	h.logger.Info("admin mode enabled", "screen", h.ctrl.Name(), "via", "password")
	writeJSON(w, http.StatusOK, map[string]any{"admin": true, "message": h.notices.Granted})
}

func (h *Screen[E]) Tap(w http.ResponseWriter, r *http.Request) {
	gate := h.sessions.Gate(ensureClientID(w, r))
	unlocked := gate.Tap()
	if unlocked {
		h.logger.Info("admin mode enabled", "screen", h.ctrl.Name(), "via", "tap")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"unlocked": unlocked,
		"taps":     gate.TapCount(),
		"admin":    gate.Active(),
	})
}

func (h *Screen[E]) Affordance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"show_login": admin.ShowLogin(h.affordance, r.URL.Query().Get("key")),
	})
}
