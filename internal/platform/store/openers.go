package store

import (
	"context"
	"fmt"
	"time"

	chx "github.com/oscar-project/ungoliant/internal/platform/store/ch"
	"github.com/oscar-project/ungoliant/internal/platform/store/pg"
	"github.com/oscar-project/ungoliant/internal/platform/store/sqlite"
	"github.com/oscar-project/ungoliant/internal/platform/store/trace"
)

// openPG opens pg and wraps it with our pgx adapter
func openPG(ctx context.Context, cfg Config, s *Store) (*pgAdapter, error) {
	var tracer trace.Tracer
	if cfg.PG.LogSQL {
		tracer = trace.Log(s.Log, "pg")
	}

	p, err := pg.Open(ctx, pg.Config{
		URL:      cfg.PG.URL,
		MaxConns: cfg.PG.MaxConns,
		SlowMs:   cfg.PG.SlowQueryMs,
		AppName:  cfg.AppName,
	}, tracer, nil)
	if err != nil {
		return nil, err
	}

	maxAttempts := cfg.PG.ConnectRetries
	if maxAttempts <= 0 {
		maxAttempts = 20
	}
	pingTimeout := cfg.PG.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 3 * time.Second
	}
	const (
		backoffStart   = 150 * time.Millisecond
		backoffCeiling = 2 * time.Second
	)

	var lastErr error
	backoff := backoffStart
	for i := 0; i < maxAttempts; i++ {
		toCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		lastErr = p.Pool.Ping(toCtx) // pool directly, no trace line
		cancel()

		if lastErr == nil {
			return newPGAdapter(p), nil
		}
		select {
		case <-ctx.Done():
			p.Close()
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, backoffCeiling)
	}

	p.Close()
	return nil, fmt.Errorf("postgres ping failed after %d attempts: %w", maxAttempts, lastErr)
}

// openSQLite opens the embedded database and wraps it with the database/sql adapter
func openSQLite(ctx context.Context, cfg Config, s *Store) (*sqlAdapter, error) {
	db, err := sqlite.Open(ctx, sqlite.Config{
		Path:         cfg.SQLite.Path,
		BusyTimeout:  cfg.SQLite.BusyTimeout,
		MaxOpenConns: cfg.SQLite.MaxOpenConns,
		SlowMs:       cfg.SQLite.SlowQueryMs,
	})
	if err != nil {
		return nil, err
	}
	var tracer trace.Tracer
	if cfg.SQLite.LogSQL {
		tracer = trace.Log(s.Log, "sqlite")
	}
	return newSQLAdapter(db.DB, tracer, cfg.SQLite.SlowQueryMs), nil
}

func openCH(ctx context.Context, cfg Config, _ *Store) (Clickhouse, error) {
	c, err := chx.Open(ctx, chx.Config{
		URL:         cfg.CH.URL,
		Role:        cfg.AppName,
		Tag:         cfg.Version,
		DialTimeout: cfg.CH.DialTimeout,
	})
	if err != nil {
		return nil, err
	}
	return newCHAdapter(c), nil
}
