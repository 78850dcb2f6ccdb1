// Package store owns the SQLite datastore: connection setup, the embedded
// schema, and transactions that are retried when SQLite reports contention or
// a caller detects an optimistic-concurrency conflict.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Options configures Open.
type Options struct {
	Path           string
	BusyTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (o Options) withDefaults() Options {
	if o.Path == "" {
		o.Path = MemoryPath
	}
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = 5 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 8
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 5 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 200 * time.Millisecond
	}
	return o
}

// Store manages persistence backed by SQLite.
type Store struct {
	db    *sql.DB
	path  string
	retry retryPolicy
}

// Open connects to the database at opts.Path, creating the schema on first use.
func Open(ctx context.Context, opts Options) (*Store, error) {
	opts = opts.withDefaults()
	memory := opts.Path == MemoryPath

	if !memory {
		if dir := filepath.Dir(opts.Path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("ensure database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dsn(opts.Path, opts.BusyTimeout, memory))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(4)
	}
	db.SetConnMaxLifetime(0)

	s := &Store{
		db:   db,
		path: opts.Path,
		retry: retryPolicy{
			attempts:       opts.MaxAttempts,
			initialBackoff: opts.InitialBackoff,
			maxBackoff:     opts.MaxBackoff,
		},
	}
	if err := s.initSchema(ensureContext(ctx)); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// dsn builds a modernc.org/sqlite DSN. Pragmas go through _pragma so that
// every pooled connection gets them, not only the first one.
func dsn(path string, busy time.Duration, memory bool) string {
	params := url.Values{}
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	if !memory {
		params.Add("_pragma", "journal_mode(WAL)")
		params.Add("_pragma", "synchronous(NORMAL)")
	}
	name := path
	if !strings.HasPrefix(name, "file:") {
		name = "file:" + name
	}
	return name + "?" + params.Encode()
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

// DB exposes the underlying handle for read-only queries.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database path the store was opened with.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WithTx runs fn inside a transaction. fn's error rolls the transaction back.
// When fn or the commit fails with a retryable error (SQLite busy, or
// ErrConflict from an optimistic version check) the whole transaction is run
// again with exponential backoff; fn must therefore re-read everything it
// depends on.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	ctx = ensureContext(ctx)
	return s.retry.do(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}
