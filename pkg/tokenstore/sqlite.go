package tokenstore

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// SQLiteStore is the session scope's durable store: local to one host, so
// a session's balance survives a façade restart without needing a network
// round trip on every capability call.
type SQLiteStore struct {
	db *stdsql.DB
}

// NewSQLiteStore opens (and creates, if absent) the token_balances table at
// path. Use ":memory:" for a process-local store with no persistence.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := stdsql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("tokenstore: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writes; avoid SQLITE_BUSY

	const ddl = `CREATE TABLE IF NOT EXISTS token_balances (
		scope_key TEXT PRIMARY KEY,
		balance   INTEGER NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tokenstore: create table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context, key string) (int64, bool, error) {
	var balance int64
	row := s.db.QueryRowContext(ctx, `SELECT balance FROM token_balances WHERE scope_key = ?`, key)
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("tokenstore: load %q: %w", key, err)
	}
	return balance, true, nil
}

func (s *SQLiteStore) Save(ctx context.Context, key string, balance int64) error {
	const upsert = `INSERT INTO token_balances (scope_key, balance) VALUES (?, ?)
		ON CONFLICT(scope_key) DO UPDATE SET balance = excluded.balance`
	if _, err := s.db.ExecContext(ctx, upsert, key, balance); err != nil {
		return fmt.Errorf("tokenstore: save %q: %w", key, err)
	}
	return nil
}
