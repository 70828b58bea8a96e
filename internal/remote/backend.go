// Package remote owns the single shared handle to the records backend.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Order is the ORDER BY of a select-all query.
type Order struct {
	Column    string
	Ascending bool
}

// Backend is the query contract every records backend satisfies.
//
// Select returns the data payload exactly as the backend produced it: it may
// be null, an object, or an array holding malformed elements. Callers
// normalize it. A non-nil error is the backend's error object.
type Backend interface {
	Select(ctx context.Context, table string, order Order) (json.RawMessage, error)
	Insert(ctx context.Context, table string, records ...any) error
	Delete(ctx context.Context, table, column string, value any) error
}

// APIError is an error reported by the backend itself, as opposed to a
// transport failure.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Message != "":
		return e.Message
	case e.Status != 0:
		return fmt.Sprintf("backend returned status %d", e.Status)
	default:
		return "backend error"
	}
}

// Message returns the user-facing message carried by err: the backend's
// message field when present, the error text otherwise, and fallback when
// err is nil or says nothing.
func Message(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return fallback
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}
