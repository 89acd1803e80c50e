// Package sqlite keeps gatekeeper state in a single-file SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
	k          TEXT PRIMARY KEY,
	v          TEXT NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
)`

type Store struct {
	db     *sql.DB
	ttl    time.Duration
	now    func() time.Time
	shared bool
}

// Open opens (or creates) the database at dsn. Entries written with a
// positive ttl are ignored by Get once expired and removed by Sweep.
func Open(dsn string, ttl time.Duration) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; avoids SQLITE_BUSY under concurrent page loads
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, ttl: ttl, now: time.Now}, nil
}

// WithTTL returns a view on the same database with a different expiry.
// Closing the view leaves the database open.
func (s *Store) WithTTL(ttl time.Duration) *Store {
	c := *s
	c.ttl = ttl
	c.shared = true
	return &c
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT v FROM kv WHERE k = ? AND (expires_at = 0 OR expires_at > ?)`,
		key, s.now().UnixMilli(),
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite get: %w", err)
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	var expires int64
	if s.ttl > 0 {
		expires = s.now().Add(s.ttl).UnixMilli()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (k, v, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(k) DO UPDATE SET v = excluded.v, expires_at = excluded.expires_at`,
		key, value, expires,
	)
	if err != nil {
		return fmt.Errorf("sqlite set: %w", err)
	}
	return nil
}

// Sweep deletes expired rows.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE expires_at <> 0 AND expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite sweep: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	if s.shared {
		return nil
	}
	return s.db.Close()
}
