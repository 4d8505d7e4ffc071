package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/oscar-project/ungoliant/internal/platform/store/trace"
)

// sqlConn is the slice of *sql.DB and *sql.Tx the adapter calls
type sqlConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlAdapter wraps a database/sql handle (the sqlite checkpoint) as a TxRunner
type sqlAdapter struct {
	db     *sql.DB
	tracer trace.Tracer
	slowMs int
}

func newSQLAdapter(db *sql.DB, tracer trace.Tracer, slowMs int) *sqlAdapter {
	return &sqlAdapter{db: db, tracer: tracer, slowMs: slowMs}
}

func (a *sqlAdapter) Ping(ctx context.Context) error {
	if a == nil || a.db == nil {
		return errors.New("sqlite: nil adapter")
	}
	return a.db.PingContext(ctx)
}

func (a *sqlAdapter) Close() error { return a.db.Close() }

func (a *sqlAdapter) q() sqlQ { return sqlQ{c: a.db, tracer: a.tracer, slowMs: a.slowMs} }

func (a *sqlAdapter) Exec(ctx context.Context, query string, args ...any) (CommandTag, error) {
	return a.q().Exec(ctx, query, args...)
}

func (a *sqlAdapter) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return a.q().Query(ctx, query, args...)
}

func (a *sqlAdapter) QueryRow(ctx context.Context, query string, args ...any) Row {
	return a.q().QueryRow(ctx, query, args...)
}

func (a *sqlAdapter) Tx(ctx context.Context, fn func(q RowQuerier) error) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(sqlQ{c: tx, tracer: a.tracer, slowMs: a.slowMs}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type sqlQ struct {
	c      sqlConn
	tracer trace.Tracer
	slowMs int
}

func (x sqlQ) Exec(ctx context.Context, query string, args ...any) (CommandTag, error) {
	start := time.Now()
	res, err := x.c.ExecContext(ctx, query, args...)
	x.emit(ctx, query, args, start, err)
	if err != nil {
		return sqlTag{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return sqlTag{}, err
	}
	return sqlTag{n: n}, nil
}

func (x sqlQ) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	start := time.Now()
	rs, err := x.c.QueryContext(ctx, query, args...)
	x.emit(ctx, query, args, start, err)
	if err != nil {
		return nil, err
	}
	return sqlRows{r: rs}, nil
}

func (x sqlQ) QueryRow(ctx context.Context, query string, args ...any) Row {
	start := time.Now()
	r := x.c.QueryRowContext(ctx, query, args...)
	return sqlRow{r: r, after: func(scanErr error) { x.emit(ctx, query, args, start, scanErr) }}
}

func (x sqlQ) emit(ctx context.Context, query string, args []any, start time.Time, err error) {
	if x.tracer == nil {
		return
	}
	us := time.Since(start).Microseconds()
	x.tracer.OnQuery(ctx, trace.Event{SQL: query, Args: args, ElapsedUS: us, Err: err, Slow: trace.Slow(us, x.slowMs)})
}

type sqlRow struct {
	r     *sql.Row
	after func(error)
}

func (x sqlRow) Scan(dst ...any) error {
	err := x.r.Scan(dst...)
	if x.after != nil {
		x.after(err)
	}
	return err
}

type sqlRows struct{ r *sql.Rows }

func (x sqlRows) Next() bool            { return x.r.Next() }
func (x sqlRows) Scan(dst ...any) error { return x.r.Scan(dst...) }
func (x sqlRows) Err() error            { return x.r.Err() }
func (x sqlRows) Close()                { _ = x.r.Close() }
func (x sqlRows) Columns() []string {
	cols, _ := x.r.Columns()
	return cols
}

// sqlTag reports rows affected the way pgconn.CommandTag does
type sqlTag struct{ n int64 }

func (t sqlTag) String() string      { return "OK " + strconv.FormatInt(t.n, 10) }
func (t sqlTag) RowsAffected() int64 { return t.n }
