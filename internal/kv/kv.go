// Package kv provides the key-value storage the backend client persists its
// session in.
package kv

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by stores that cannot serve requests.
var ErrUnavailable = errors.New("kv: storage unavailable")

// Getter is the minimal capability the backend client requires.
type Getter interface {
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
}

// Writer is the optional capability used to persist and clear sessions.
type Writer interface {
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// Storage is a full read-write store.
type Storage interface {
	Getter
	Writer
}
