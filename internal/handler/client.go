package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/dukerupert/knightlife/internal/admin"
	"github.com/dukerupert/knightlife/internal/screen"
)

// ClientCookie names the cookie that ties a browser to its admin state.
const ClientCookie = "knightlife_client"

const maxClientIDLen = 64

func clientID(r *http.Request) string {
	c, err := r.Cookie(ClientCookie)
	if err != nil || len(c.Value) > maxClientIDLen {
		return ""
	}
	return c.Value
}

// ensureClientID returns the caller's client id, issuing a new cookie when
// the request has none.
func ensureClientID(w http.ResponseWriter, r *http.Request) string {
	if id := clientID(r); id != "" {
		return id
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     ClientCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// adminContext scopes the request context to the caller's admin mode.
func adminContext(r *http.Request, sessions *admin.Sessions) context.Context {
	var mode screen.AdminMode
	if g := sessions.Lookup(clientID(r)); g != nil {
		mode = g
	}
	return screen.WithAdmin(r.Context(), mode)
}
