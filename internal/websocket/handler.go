package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
)

// Handler upgrades requests and runs them as hub clients. With no origin
// patterns only same-origin connections are accepted.
func Handler(hub *Hub, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warn("websocket accept failed", "error", err, "remote", r.RemoteAddr)
			return
		}
		defer conn.CloseNow()

		NewClient(hub, conn).Run(r.Context())
		conn.Close(ws.StatusNormalClosure, "")
	}
}
