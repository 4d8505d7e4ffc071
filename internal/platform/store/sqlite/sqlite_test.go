package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDSN_CarriesPragmas(t *testing.T) {
	d := DSN("/var/lib/ungoliant/checkpoint.db", 2*time.Second)
	if !strings.HasPrefix(d, "file:/var/lib/ungoliant/checkpoint.db?") {
		t.Fatalf("DSN prefix: %q", d)
	}
	for _, want := range []string{"busy_timeout%282000%29", "journal_mode%28WAL%29", "synchronous%28FULL%29"} {
		if !strings.Contains(d, want) {
			t.Fatalf("DSN %q missing %q", d, want)
		}
	}
	if !strings.Contains(DSN("x.db", 0), "busy_timeout%285000%29") {
		t.Fatalf("zero busy timeout should default to 5s")
	}
}

func TestOpen_CreatesFileInWALMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "checkpoint.db")
	db, err := Open(context.Background(), Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	var mode string
	if err := db.DB.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("pragma: %v", err)
	}
	if strings.ToLower(mode) != "wal" {
		t.Fatalf("journal_mode = %q, want wal", mode)
	}
	if _, err := db.DB.Exec("CREATE TABLE t (k TEXT PRIMARY KEY)"); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestClose_NilSafe(t *testing.T) {
	var d *DB
	if err := d.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}
