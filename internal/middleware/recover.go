package middleware

import (
	"html/template"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
)

var boundaryPage = template.Must(template.New("boundary").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Something went wrong</title></head>
<body style="font-family: system-ui, sans-serif; text-align: center; padding-top: 20vh;">
<h1>Something went wrong</h1>
<p>The screen could not be displayed.</p>
<p><a href="{{.}}" style="background:#CC0033;color:#FFF;padding:14px;border-radius:10px;text-decoration:none;font-weight:bold">Try Again</a></p>
</body>
</html>
`))

// Recover turns a handler panic into a 500 response instead of a dropped
// connection. Browsers get a page with a retry link; API callers get JSON.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("handler panic",
					"panic", rec,
					"path", r.URL.Path,
					"request_id", RequestIDFrom(r.Context()),
					"stack", string(debug.Stack()),
				)

				if strings.HasPrefix(r.URL.Path, "/api/") {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte(`{"error":"Something went wrong"}` + "\n"))
					return
				}
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				boundaryPage.Execute(w, r.URL.RequestURI())
			}()
			next.ServeHTTP(w, r)
		})
	}
}
