package store

import (
	"context"
	"errors"
	"testing"

	"github.com/oscar-project/ungoliant/internal/platform/store/ch"
)

type fakeCHRows struct {
	vals   []int32
	i      int
	closed bool
}

func (r *fakeCHRows) Next() bool {
	if r.i >= len(r.vals) {
		return false
	}
	r.i++
	return true
}
func (r *fakeCHRows) Scan(dest ...any) error {
	*(dest[0].(*int32)) = r.vals[r.i-1]
	return nil
}
func (r *fakeCHRows) Err() error        { return nil }
func (r *fakeCHRows) Close() error      { r.closed = true; return nil }
func (r *fakeCHRows) Columns() []string { return []string{"x"} }

type fakeCH struct {
	inserted map[string][][]any
	rows     *fakeCHRows
	queryErr error
}

func (f *fakeCH) Insert(_ context.Context, table string, rows [][]any) error {
	if f.inserted == nil {
		f.inserted = map[string][][]any{}
	}
	f.inserted[table] = append(f.inserted[table], rows...)
	return nil
}
func (f *fakeCH) Exec(context.Context, string, ...any) error { return nil }
func (f *fakeCH) Query(context.Context, string, ...any) (ch.Rows, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.rows, nil
}
func (f *fakeCH) Close() error { return nil }

func TestCHAdapter_PingAndInsert(t *testing.T) {
	f := &fakeCH{rows: &fakeCHRows{vals: []int32{1}}}
	a := &clickhouseAdapter{inner: f}

	if err := a.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if !f.rows.closed {
		t.Fatalf("ping rows not closed")
	}
	if err := a.Insert(context.Background(), "shard_stats", [][]any{{"00001", "fr", uint64(3)}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if len(f.inserted["shard_stats"]) != 1 {
		t.Fatalf("inserted = %+v", f.inserted)
	}
}

func TestCHAdapter_PingErrors(t *testing.T) {
	if err := (&clickhouseAdapter{inner: &fakeCH{rows: &fakeCHRows{}}}).Ping(context.Background()); err == nil {
		t.Fatalf("expected error on empty ping result")
	}
	boom := errors.New("dial")
	if err := (&clickhouseAdapter{inner: &fakeCH{queryErr: boom}}).Ping(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Ping err = %v", err)
	}
}
