// Package sqlite opens the embedded checkpoint database (modernc.org/sqlite, no cgo)
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Config configures the embedded database
type Config struct {
	Path        string
	BusyTimeout time.Duration
	// MaxOpenConns caps the pool; 1 serializes writers so SQLITE_BUSY only comes from other processes
	MaxOpenConns int
	SlowMs       int
}

// DB is an opened sqlite database
type DB struct {
	DB     *sql.DB
	Path   string
	SlowMs int
}

var sqlOpen = sql.Open

// DSN renders path with the per-connection pragmas every pooled connection needs
func DSN(path string, busy time.Duration) string {
	if busy <= 0 {
		busy = 5 * time.Second
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(FULL)")
	q.Add("_pragma", "foreign_keys(1)")
	return "file:" + path + "?" + q.Encode()
}

// Open opens (creating if needed) the database at cfg.Path and verifies it answers
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite: empty path")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir %s: %w", dir, err)
		}
	}

	db, err := sqlOpen("sqlite", DSN(cfg.Path, cfg.BusyTimeout))
	if err != nil {
		return nil, err
	}
	conns := cfg.MaxOpenConns
	if conns <= 0 {
		conns = 1
	}
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)

	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}
	return &DB{DB: db, Path: cfg.Path, SlowMs: cfg.SlowMs}, nil
}

// Close closes the database
func (d *DB) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
