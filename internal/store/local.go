package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/dukerupert/knightlife/internal/model"
	"github.com/dukerupert/knightlife/internal/remote"
)

// Error codes shared with the hosted backend so callers see one vocabulary.
const (
	CodeUndefinedTable  = "42P01"
	CodeUndefinedColumn = "PGRST204"
	CodeInternal        = "XX000"
)

// columns lists the selectable columns of each table in select order.
var columns = map[string][]string{
	model.EventsTable: {"id", "frat", "date", "time", "details", "created_at"},
	model.FratsTable:  {"id", "name", "abbreviation", "address", "details", "created_at"},
}

// Local is a remote.Backend over the local SQLite database.
type Local struct {
	db *sql.DB
}

var _ remote.Backend = (*Local)(nil)

func NewLocal(db *sql.DB) *Local {
	return &Local{db: db}
}

func (l *Local) Select(ctx context.Context, table string, order remote.Order) (json.RawMessage, error) {
	cols, err := tableColumns(table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), table)
	if order.Column != "" {
		if !slices.Contains(cols, order.Column) {
			return nil, unknownColumn(table, order.Column)
		}
		dir := "DESC"
		if order.Ascending {
			dir = "ASC"
		}
		query += fmt.Sprintf(" ORDER BY %s %s", order.Column, dir)
	}

	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, internal(fmt.Errorf("query %s: %w", table, err))
	}
	defer rows.Close()

	out := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, internal(fmt.Errorf("scan %s: %w", table, err))
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, internal(fmt.Errorf("iterate %s: %w", table, err))
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal %s rows: %w", table, err)
	}
	return data, nil
}

// Insert writes each record in one transaction. Records are anything that
// marshals to a JSON object; the id and created_at columns are assigned by
// the database.
func (l *Local) Insert(ctx context.Context, table string, records ...any) error {
	cols, err := tableColumns(table)
	if err != nil {
		return err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return internal(fmt.Errorf("begin insert: %w", err))
	}
	defer tx.Rollback()

	for _, record := range records {
		fields, err := toFields(record)
		if err != nil {
			return err
		}

		var names []string
		var args []any
		for _, col := range cols {
			v, ok := fields[col]
			if !ok {
				continue
			}
			delete(fields, col)
			if col == "id" || col == "created_at" {
				continue
			}
			names = append(names, col)
			args = append(args, v)
		}
		if extra := slices.Sorted(maps.Keys(fields)); len(extra) > 0 {
			return unknownColumn(table, extra[0])
		}
		if len(names) == 0 {
			return &remote.APIError{Code: CodeInternal, Message: "record has no columns"}
		}

		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(names, ", "), placeholders)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return internal(fmt.Errorf("insert %s: %w", table, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return internal(fmt.Errorf("commit insert: %w", err))
	}
	return nil
}

func (l *Local) Delete(ctx context.Context, table, column string, value any) error {
	cols, err := tableColumns(table)
	if err != nil {
		return err
	}
	if !slices.Contains(cols, column) {
		return unknownColumn(table, column)
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, column)
	if _, err := l.db.ExecContext(ctx, query, value); err != nil {
		return internal(fmt.Errorf("delete %s: %w", table, err))
	}
	return nil
}

func toFields(record any) (map[string]any, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, &remote.APIError{Code: CodeInternal, Message: "record is not an object"}
	}
	return fields, nil
}

func tableColumns(table string) ([]string, error) {
	cols, ok := columns[table]
	if !ok {
		return nil, &remote.APIError{
			Code:    CodeUndefinedTable,
			Message: fmt.Sprintf("relation %q does not exist", table),
		}
	}
	return cols, nil
}

func unknownColumn(table, column string) error {
	return &remote.APIError{
		Code:    CodeUndefinedColumn,
		Message: fmt.Sprintf("Could not find the '%s' column of '%s' in the schema cache", column, table),
	}
}

func internal(err error) error {
	return &remote.APIError{Code: CodeInternal, Message: err.Error()}
}
