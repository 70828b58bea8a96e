package handler

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/knightlife/internal/admin"
	"github.com/dukerupert/knightlife/internal/model"
	"github.com/dukerupert/knightlife/internal/screen"
	"github.com/dukerupert/knightlife/internal/view"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page renders the server-side HTML screens.
type Page struct {
	events      *screen.Controller[model.Event]
	frats       *screen.Controller[model.Frat]
	eventsAdmin *admin.Sessions
	fratsAdmin  *admin.Sessions
	affordance  admin.Affordance
	templates   *template.Template
	logger      *slog.Logger
}

// NewPage renders events and frats. Each screen reads the caller's admin
// mode from its own sessions.
func NewPage(events *screen.Controller[model.Event], eventsAdmin *admin.Sessions, frats *screen.Controller[model.Frat], fratsAdmin *admin.Sessions, affordance admin.Affordance, logger *slog.Logger) *Page {
	return &Page{
		events:      events,
		frats:       frats,
		eventsAdmin: eventsAdmin,
		fratsAdmin:  fratsAdmin,
		affordance:  affordance,
		templates:   template.Must(template.ParseFS(templateFS, "templates/*.html")),
		logger:      logger,
	}
}

func (h *Page) Home(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	h.render(w, "home.html", map[string]any{"Title": "Rutgers KnightLife"})
}

func (h *Page) Events(w http.ResponseWriter, r *http.Request) {
	id := ensureClientID(w, r)
	out := h.events.LoadAll(r.Context())
	st := h.events.State()
	st.Admin = h.eventsAdmin.Active(id)

	h.render(w, "events.html", map[string]any{
		"Title":     "Events",
		"Screen":    h.events.Name(),
		"Cards":     view.EventCards(st.Items, st.Admin),
		"Empty":     view.Empty("event"),
		"Admin":     st.Admin,
		"ShowLogin": admin.ShowLogin(h.affordance, r.URL.Query().Get("key")),
		"Notice":    notice(out),
	})
}

func (h *Page) Search(w http.ResponseWriter, r *http.Request) {
	id := ensureClientID(w, r)
	out := h.frats.LoadAll(r.Context())
	st := h.frats.State()
	st.Admin = h.fratsAdmin.Active(id)

	expanded, _ := strconv.ParseInt(r.URL.Query().Get("expanded"), 10, 64)
	h.render(w, "search.html", map[string]any{
		"Title":     "Search Frats",
		"Screen":    h.frats.Name(),
		"Cards":     view.FratCards(st.Items, expanded, st.Admin),
		"Empty":     view.Empty("frat"),
		"Admin":     st.Admin,
		"ShowLogin": admin.ShowLogin(h.affordance, r.URL.Query().Get("key")),
		"Expanded":  expanded,
		"Notice":    notice(out),
	})
}

// notice is the banner text for a failed load. A missing backend is not
// announced; the empty list says enough.
func notice(out screen.Outcome) string {
	if out.Kind == screen.OK || out.Kind == screen.ConnectionError {
		return ""
	}
	return out.Message
}

func (h *Page) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("template error", "template", name, "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}
