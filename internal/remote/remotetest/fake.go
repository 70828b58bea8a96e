// Package remotetest provides a programmable remote.Backend for tests.
package remotetest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dukerupert/knightlife/internal/remote"
)

// Fake records every call. Unset hooks fall back to returning Data[table]
// for selects and succeeding for writes.
type Fake struct {
	mu   sync.Mutex
	Data map[string]json.RawMessage

	SelectFunc func(ctx context.Context, table string, order remote.Order) (json.RawMessage, error)
	InsertFunc func(ctx context.Context, table string, records ...any) error
	DeleteFunc func(ctx context.Context, table, column string, value any) error

	selects  int
	inserts  []any
	deletes  []any
	lastSort remote.Order
}

func New() *Fake {
	return &Fake{Data: make(map[string]json.RawMessage)}
}

// Set replaces the select payload for table.
func (f *Fake) Set(table, payload string) {
	f.mu.Lock()
	f.Data[table] = json.RawMessage(payload)
	f.mu.Unlock()
}

func (f *Fake) Select(ctx context.Context, table string, order remote.Order) (json.RawMessage, error) {
	f.mu.Lock()
	f.selects++
	f.lastSort = order
	hook := f.SelectFunc
	data := f.Data[table]
	f.mu.Unlock()

	if hook != nil {
		return hook(ctx, table, order)
	}
	return data, nil
}

func (f *Fake) Insert(ctx context.Context, table string, records ...any) error {
	f.mu.Lock()
	f.inserts = append(f.inserts, records...)
	hook := f.InsertFunc
	f.mu.Unlock()

	if hook != nil {
		return hook(ctx, table, records...)
	}
	return nil
}

func (f *Fake) Delete(ctx context.Context, table, column string, value any) error {
	f.mu.Lock()
	f.deletes = append(f.deletes, value)
	hook := f.DeleteFunc
	f.mu.Unlock()

	if hook != nil {
		return hook(ctx, table, column, value)
	}
	return nil
}

// Selects returns the number of Select calls so far.
func (f *Fake) Selects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selects
}

// Inserted returns every record passed to Insert.
func (f *Fake) Inserted() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.inserts...)
}

// Deleted returns every value passed to Delete.
func (f *Fake) Deleted() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.deletes...)
}

// Calls is the total number of backend calls of any kind.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selects + len(f.inserts) + len(f.deletes)
}

// LastOrder returns the order of the most recent Select.
func (f *Fake) LastOrder() remote.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSort
}
