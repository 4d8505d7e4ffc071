package store

import (
	"context"
	"errors"
	"time"

	"github.com/oscar-project/ungoliant/internal/platform/store/pg"
	"github.com/oscar-project/ungoliant/internal/platform/store/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgxQuerier is the slice of pgxpool.Pool and pgx.Tx the adapter calls
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgAdapter wraps pg.PG and implements RowQuerier + TxRunner
// it rebinds ? placeholders and emits trace events when a tracer is configured
type pgAdapter struct {
	p *pg.PG
	q pgxQuerier
}

func newPGAdapter(p *pg.PG) *pgAdapter { return &pgAdapter{p: p, q: p.Pool} }

func (a *pgAdapter) Ping(ctx context.Context) error {
	if a == nil {
		return errors.New("pg: nil adapter")
	}
	var one int
	return a.QueryRow(ctx, "SELECT 1").Scan(&one)
}

func (a *pgAdapter) Close() error { a.p.Close(); return nil }

func (a *pgAdapter) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	return pgQ{q: a.q, tracer: a.p.Tracer, slowMs: a.p.SlowMs}.Exec(ctx, sql, args...)
}

func (a *pgAdapter) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	return pgQ{q: a.q, tracer: a.p.Tracer, slowMs: a.p.SlowMs}.Query(ctx, sql, args...)
}

func (a *pgAdapter) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return pgQ{q: a.q, tracer: a.p.Tracer, slowMs: a.p.SlowMs}.QueryRow(ctx, sql, args...)
}

func (a *pgAdapter) Tx(ctx context.Context, fn func(q RowQuerier) error) error {
	tx, err := a.p.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(pgQ{q: tx, tracer: a.p.Tracer, slowMs: a.p.SlowMs}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// pgQ runs statements on a pool or a tx; both paths trace the same way
type pgQ struct {
	q      pgxQuerier
	tracer trace.Tracer
	slowMs int
}

func (x pgQ) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	sql = Rebind(sql)
	start := time.Now()
	ct, err := x.q.Exec(ctx, sql, args...)
	x.emit(ctx, sql, args, start, err)
	return pgTag{ct}, err
}

func (x pgQ) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	sql = Rebind(sql)
	start := time.Now()
	rs, err := x.q.Query(ctx, sql, args...)
	x.emit(ctx, sql, args, start, err)
	if err != nil {
		return nil, err
	}
	return pgRows{r: rs}, nil
}

func (x pgQ) QueryRow(ctx context.Context, sql string, args ...any) Row {
	sql = Rebind(sql)
	start := time.Now()
	r := x.q.QueryRow(ctx, sql, args...)
	return pgRow{r: r, after: func(scanErr error) { x.emit(ctx, sql, args, start, scanErr) }}
}

func (x pgQ) emit(ctx context.Context, sql string, args []any, start time.Time, err error) {
	if x.tracer == nil {
		return
	}
	us := time.Since(start).Microseconds()
	x.tracer.OnQuery(ctx, trace.Event{SQL: sql, Args: args, ElapsedUS: us, Err: err, Slow: trace.Slow(us, x.slowMs)})
}

type pgRow struct {
	r     pgx.Row
	after func(error)
}

func (x pgRow) Scan(dst ...any) error {
	err := x.r.Scan(dst...)
	if x.after != nil {
		x.after(err)
	}
	return err
}

type pgRows struct{ r pgx.Rows }

func (x pgRows) Next() bool            { return x.r.Next() }
func (x pgRows) Scan(dst ...any) error { return x.r.Scan(dst...) }
func (x pgRows) Err() error            { return x.r.Err() }
func (x pgRows) Close()                { x.r.Close() }
func (x pgRows) Columns() []string {
	f := x.r.FieldDescriptions()
	out := make([]string, len(f))
	for i := range f {
		out[i] = f[i].Name
	}
	return out
}

type pgTag struct{ t pgconn.CommandTag }

func (t pgTag) String() string      { return t.t.String() }
func (t pgTag) RowsAffected() int64 { return t.t.RowsAffected() }
