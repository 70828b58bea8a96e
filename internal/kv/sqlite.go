package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLite is a Storage backed by the kv_items table. With a non-empty
// passphrase every value is sealed with AES-256-GCM under a key derived once
// at open time.
type SQLite struct {
	db     *sql.DB
	sealer *sealer
}

// NewSQLite opens a store over db, which must already be migrated.
func NewSQLite(ctx context.Context, db *sql.DB, passphrase string) (*SQLite, error) {
	s := &SQLite{db: db}
	if passphrase == "" {
		return s, nil
	}

	salt, err := s.loadSalt(ctx)
	if err != nil {
		return nil, err
	}
	sl, err := newSealer(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	s.sealer = sl
	return s, nil
}

func (s *SQLite) loadSalt(ctx context.Context) ([]byte, error) {
	var salt []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv_meta WHERE key = 'salt'").Scan(&salt)
	if err == nil && len(salt) == saltSize {
		return salt, nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query kv salt: %w", err)
	}

	salt, err = generateSalt()
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_meta (key, value) VALUES ('salt', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, salt); err != nil {
		return nil, fmt.Errorf("store kv salt: %w", err)
	}
	return salt, nil
}

// Encrypted reports whether values are sealed at rest.
func (s *SQLite) Encrypted() bool {
	return s.sealer != nil
}

func (s *SQLite) GetItem(ctx context.Context, key string) (string, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv_items WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query kv item: %w", err)
	}

	if s.sealer == nil {
		return string(raw), true, nil
	}
	plain, err := s.sealer.open(raw, []byte(key))
	if err != nil {
		return "", false, fmt.Errorf("open kv item %q: %w", key, err)
	}
	return string(plain), true, nil
}

func (s *SQLite) SetItem(ctx context.Context, key, value string) error {
	raw := []byte(value)
	if s.sealer != nil {
		sealed, err := s.sealer.seal(raw, []byte(key))
		if err != nil {
			return fmt.Errorf("seal kv item: %w", err)
		}
		raw = sealed
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_items (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, raw,
	)
	if err != nil {
		return fmt.Errorf("upsert kv item: %w", err)
	}
	return nil
}

func (s *SQLite) RemoveItem(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv_items WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete kv item: %w", err)
	}
	return nil
}
