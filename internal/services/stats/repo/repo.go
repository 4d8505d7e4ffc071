// Package repo writes and reads pipeline statistics in ClickHouse
package repo

import (
	"context"
	"time"

	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/platform/store"
	"github.com/oscar-project/ungoliant/internal/services/stats/domain"
)

// table names
const (
	TableShards    = "ungoliant_shards"
	TableShardLang = "ungoliant_shard_languages"
	TableRuns      = "ungoliant_runs"
	TableCorpora   = "ungoliant_corpora"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS ` + TableShards + ` (
	run_id String,
	shard String,
	outcome LowCardinality(String),
	reason String,
	records UInt64,
	malformed UInt64,
	rejected UInt64,
	documents UInt64,
	elapsed_ms UInt64,
	at DateTime64(3, 'UTC')
) ENGINE = MergeTree ORDER BY (shard, at)`,
	`CREATE TABLE IF NOT EXISTS ` + TableShardLang + ` (
	run_id String,
	shard String,
	lang LowCardinality(String),
	documents UInt64,
	bytes UInt64,
	at DateTime64(3, 'UTC')
) ENGINE = MergeTree ORDER BY (lang, shard, at)`,
	`CREATE TABLE IF NOT EXISTS ` + TableRuns + ` (
	run_id String,
	shards UInt32,
	done UInt32,
	failed UInt32,
	skipped UInt32,
	lost UInt32,
	documents UInt64,
	malformed UInt64,
	elapsed_ms UInt64,
	at DateTime64(3, 'UTC')
) ENGINE = MergeTree ORDER BY at`,
	`CREATE TABLE IF NOT EXISTS ` + TableCorpora + ` (
	lang LowCardinality(String),
	documents UInt64,
	duplicates UInt64,
	filtered UInt64,
	size UInt64,
	digest String,
	at DateTime64(3, 'UTC')
) ENGINE = MergeTree ORDER BY (lang, at)`,
}

// Repo is the ClickHouse persistence surface
type Repo struct {
	ch store.Clickhouse
}

// New binds the repo to a clickhouse seam
func New(ch store.Clickhouse) *Repo { return &Repo{ch: ch} }

// Migrate creates the tables if missing
func (r *Repo) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if err := r.ch.Exec(ctx, stmt); err != nil {
			return perr.Wrap(err, perr.ErrorCodeDB, "clickhouse schema")
		}
	}
	return nil
}

// Insert appends rows to table
func (r *Repo) Insert(ctx context.Context, table string, rows [][]any) error {
	if err := r.ch.Insert(ctx, table, rows); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "insert %s", table)
	}
	return nil
}

// Runs returns the most recent runs, newest first
func (r *Repo) Runs(ctx context.Context, limit int) ([]domain.RunRow, error) {
	const sql = `
SELECT run_id, at, shards, done, failed, skipped, lost, documents, malformed, elapsed_ms
FROM ` + TableRuns + `
ORDER BY at DESC
LIMIT ?`
	rows, err := r.ch.Query(ctx, sql, limit)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeUnavailable, "query runs")
	}
	defer rows.Close()
	var out []domain.RunRow
	for rows.Next() {
		var (
			rr domain.RunRow
			ms uint64
		)
		if err := rows.Scan(&rr.RunID, &rr.At, &rr.Shards, &rr.Done, &rr.Failed, &rr.Skipped, &rr.Lost,
			&rr.Documents, &rr.Malformed, &ms); err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeDB, "scan run")
		}
		rr.Elapsed = time.Duration(ms) * time.Millisecond
		out = append(out, rr)
	}
	return out, perr.WrapIf(rows.Err(), perr.ErrorCodeDB, "iterate runs")
}

// Corpora returns recent corpus builds, optionally for one language
func (r *Repo) Corpora(ctx context.Context, lang string, limit int) ([]domain.CorpusRow, error) {
	const sql = `
SELECT lang, at, documents, duplicates, filtered, size, digest
FROM ` + TableCorpora + `
WHERE (? = '' OR lang = ?)
ORDER BY at DESC
LIMIT ?`
	rows, err := r.ch.Query(ctx, sql, lang, lang, limit)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeUnavailable, "query corpora")
	}
	defer rows.Close()
	var out []domain.CorpusRow
	for rows.Next() {
		var c domain.CorpusRow
		if err := rows.Scan(&c.Lang, &c.At, &c.Documents, &c.Duplicates, &c.Filtered, &c.Size, &c.Digest); err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeDB, "scan corpus")
		}
		out = append(out, c)
	}
	return out, perr.WrapIf(rows.Err(), perr.ErrorCodeDB, "iterate corpora")
}
