package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dukerupert/knightlife/internal/screen"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// statusFor maps an outcome to the HTTP status reported alongside it.
func statusFor(out screen.Outcome, success int) int {
	switch out.Kind {
	case screen.OK:
		return success
	case screen.Unauthorized:
		return http.StatusForbidden
	case screen.Invalid:
		return http.StatusBadRequest
	case screen.ConnectionError:
		return http.StatusServiceUnavailable
	case screen.BackendError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
