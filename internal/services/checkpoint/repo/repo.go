// Package repo provides SQL access to the checkpoint tables for sqlite and postgres.
// Statements use ? placeholders; the store adapters rebind them for postgres
package repo

import (
	"context"
	"sort"
	"time"

	"github.com/oscar-project/ungoliant/internal/modkit/repokit"
	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/platform/store"
	"github.com/oscar-project/ungoliant/internal/services/checkpoint/domain"
)

type (
	// SQL is the binder for domain.StorageRepo
	SQL     struct{}
	queries struct{ q repokit.Queryer }
)

// New returns a binder for domain.StorageRepo
func New() repokit.Binder[domain.StorageRepo] { return SQL{} }

// Bind implements repokit.Binder
func (SQL) Bind(q repokit.Queryer) domain.StorageRepo { return &queries{q: q} }

const shardColumns = `shard_id, state, reason, attempts, run_id, records, malformed, rejected,
	truncated, documents, bytes, elapsed_ms, updated_at`

func scanShard(r store.Row) (domain.Shard, error) {
	var (
		s         domain.Shard
		state     string
		truncated int64
		updated   int64
	)
	if err := r.Scan(&s.ID, &state, &s.Reason, &s.Attempts, &s.RunID, &s.Records, &s.Malformed, &s.Rejected,
		&truncated, &s.Documents, &s.Bytes, &s.ElapsedMS, &updated); err != nil {
		return s, err
	}
	s.State = domain.State(state)
	s.Truncated = truncated != 0
	s.UpdatedAt = time.UnixMilli(updated).UTC()
	return s, nil
}

// Seed inserts missing ids as pending
func (r *queries) Seed(ctx context.Context, ids []string, now time.Time) (int, error) {
	n := 0
	for _, id := range ids {
		ok, err := store.ExecOne(ctx, r.q, `
			INSERT INTO shards (shard_id, state, updated_at)
			VALUES (?, 'pending', ?)
			ON CONFLICT (shard_id) DO NOTHING`,
			id, now.UnixMilli(),
		)
		if err != nil {
			return n, perr.Wrapf(err, perr.ErrorCodeDB, "seed %s", id)
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Recover resets stale in_progress rows. Rows held by runID are always stale: the run
// has not claimed anything yet, so they were left by an earlier process under the same id
func (r *queries) Recover(ctx context.Context, runID string, cutoff, now time.Time) (int, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE shards
		   SET state = 'pending', updated_at = ?
		 WHERE state = 'in_progress' AND (run_id = ? OR updated_at <= ?)`,
		now.UnixMilli(), runID, cutoff.UnixMilli(),
	)
	if err != nil {
		return 0, perr.Wrap(err, perr.ErrorCodeDB, "recover stale shards")
	}
	return int(tag.RowsAffected()), nil
}

// Claim is a compare-and-set on the shard state
func (r *queries) Claim(ctx context.Context, id, runID string, now time.Time) (bool, error) {
	ok, err := store.ExecOne(ctx, r.q, `
		UPDATE shards
		   SET state = 'in_progress', run_id = ?, attempts = attempts + 1, reason = '', updated_at = ?
		 WHERE shard_id = ? AND state IN ('pending', 'failed')`,
		runID, now.UnixMilli(), id,
	)
	return ok, perr.WrapIf(err, perr.ErrorCodeDB, "claim "+id)
}

// MarkDone must run inside a transaction so the state and the language rows move together
func (r *queries) MarkDone(ctx context.Context, id, runID string, c domain.Completion, now time.Time) (bool, error) {
	truncated := 0
	if c.Truncated {
		truncated = 1
	}
	ok, err := store.ExecOne(ctx, r.q, `
		UPDATE shards
		   SET state = 'done', reason = '', records = ?, malformed = ?, rejected = ?, truncated = ?,
		       documents = ?, bytes = ?, elapsed_ms = ?, updated_at = ?
		 WHERE shard_id = ? AND state = 'in_progress' AND run_id = ?`,
		c.Records, c.Malformed, c.Rejected, truncated,
		c.Documents(), c.Bytes(), c.Elapsed.Milliseconds(), now.UnixMilli(),
		id, runID,
	)
	if err != nil {
		return false, perr.Wrapf(err, perr.ErrorCodeDB, "mark %s done", id)
	}
	if !ok {
		return false, nil
	}
	if err := r.dropLanguages(ctx, id); err != nil {
		return false, err
	}
	langs := make([]string, 0, len(c.Languages))
	for l := range c.Languages {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	for _, l := range langs {
		lc := c.Languages[l]
		if _, err := r.q.Exec(ctx, `
			INSERT INTO shard_languages (shard_id, lang, documents, bytes) VALUES (?, ?, ?, ?)`,
			id, l, lc.Documents, lc.Bytes,
		); err != nil {
			return false, perr.Wrapf(err, perr.ErrorCodeDB, "record %s/%s", id, l)
		}
	}
	return true, nil
}

// MarkFailed records the failure reason
func (r *queries) MarkFailed(ctx context.Context, id, runID, reason string, now time.Time) (bool, error) {
	ok, err := store.ExecOne(ctx, r.q, `
		UPDATE shards
		   SET state = 'failed', reason = ?, updated_at = ?
		 WHERE shard_id = ? AND state = 'in_progress' AND run_id = ?`,
		reason, now.UnixMilli(), id, runID,
	)
	return ok, perr.WrapIf(err, perr.ErrorCodeDB, "mark "+id+" failed")
}

// Get returns one shard with its language counts
func (r *queries) Get(ctx context.Context, id string) (domain.Shard, error) {
	s, err := store.One(ctx, r.q, scanShard, `SELECT `+shardColumns+` FROM shards WHERE shard_id = ?`, id)
	if err != nil {
		if perr.IsCode(err, perr.ErrorCodeNotFound) {
			return s, perr.NotFoundf("shard %s is not in the checkpoint", id)
		}
		return s, perr.Wrapf(err, perr.ErrorCodeDB, "get %s", id)
	}
	type row struct {
		lang string
		c    domain.LangCount
	}
	rows, err := store.Many(ctx, r.q, func(x store.Row) (row, error) {
		var v row
		err := x.Scan(&v.lang, &v.c.Documents, &v.c.Bytes)
		return v, err
	}, `SELECT lang, documents, bytes FROM shard_languages WHERE shard_id = ? ORDER BY lang`, id)
	if err != nil {
		return s, perr.Wrapf(err, perr.ErrorCodeDB, "languages of %s", id)
	}
	if len(rows) > 0 {
		s.Languages = make(map[string]domain.LangCount, len(rows))
		for _, v := range rows {
			s.Languages[v.lang] = v.c
		}
	}
	return s, nil
}

// List returns shards in id order; an empty state lists all of them
func (r *queries) List(ctx context.Context, state domain.State) ([]domain.Shard, error) {
	var (
		out []domain.Shard
		err error
	)
	if state == "" {
		out, err = store.Many(ctx, r.q, scanShard, `SELECT `+shardColumns+` FROM shards ORDER BY shard_id`)
	} else {
		out, err = store.Many(ctx, r.q, scanShard,
			`SELECT `+shardColumns+` FROM shards WHERE state = ? ORDER BY shard_id`, string(state))
	}
	return out, perr.WrapIf(err, perr.ErrorCodeDB, "list shards")
}

// Counts returns the number of shards per state; absent states are zero
func (r *queries) Counts(ctx context.Context) (map[domain.State]int64, error) {
	type row struct {
		state string
		n     int64
	}
	rows, err := store.Many(ctx, r.q, func(x store.Row) (row, error) {
		var v row
		err := x.Scan(&v.state, &v.n)
		return v, err
	}, `SELECT state, COUNT(*) FROM shards GROUP BY state`)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeDB, "count shards")
	}
	out := make(map[domain.State]int64, len(domain.States))
	for _, s := range domain.States {
		out[s] = 0
	}
	for _, v := range rows {
		out[domain.State(v.state)] = v.n
	}
	return out, nil
}

// ShardsWithLang lists done shards that hold documents in lang
func (r *queries) ShardsWithLang(ctx context.Context, lang string) (map[string]domain.LangCount, error) {
	type row struct {
		id string
		c  domain.LangCount
	}
	rows, err := store.Many(ctx, r.q, func(x store.Row) (row, error) {
		var v row
		err := x.Scan(&v.id, &v.c.Documents, &v.c.Bytes)
		return v, err
	}, `
		SELECT l.shard_id, l.documents, l.bytes
		  FROM shard_languages l
		  JOIN shards s ON s.shard_id = l.shard_id
		 WHERE l.lang = ? AND s.state = 'done'`, lang)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeDB, "shards with %s", lang)
	}
	out := make(map[string]domain.LangCount, len(rows))
	for _, v := range rows {
		out[v.id] = v.c
	}
	return out, nil
}

// LangTotals aggregates languages over done shards
func (r *queries) LangTotals(ctx context.Context) ([]domain.LangTotal, error) {
	out, err := store.Many(ctx, r.q, func(x store.Row) (domain.LangTotal, error) {
		var v domain.LangTotal
		err := x.Scan(&v.Lang, &v.Shards, &v.Documents, &v.Bytes)
		return v, err
	}, `
		SELECT l.lang, COUNT(*), CAST(SUM(l.documents) AS BIGINT), CAST(SUM(l.bytes) AS BIGINT)
		  FROM shard_languages l
		  JOIN shards s ON s.shard_id = l.shard_id
		 WHERE s.state = 'done'
		 GROUP BY l.lang
		 ORDER BY l.lang`)
	return out, perr.WrapIf(err, perr.ErrorCodeDB, "language totals")
}

// Invalidate resets a finished shard; in_progress and unknown ids are left alone
func (r *queries) Invalidate(ctx context.Context, id string, now time.Time) (bool, error) {
	ok, err := store.ExecOne(ctx, r.q, `
		UPDATE shards
		   SET state = 'pending', reason = '', records = 0, malformed = 0, rejected = 0, truncated = 0,
		       documents = 0, bytes = 0, elapsed_ms = 0, updated_at = ?
		 WHERE shard_id = ? AND state IN ('done', 'failed')`,
		now.UnixMilli(), id,
	)
	if err != nil {
		return false, perr.Wrapf(err, perr.ErrorCodeDB, "invalidate %s", id)
	}
	if !ok {
		return false, nil
	}
	return true, r.dropLanguages(ctx, id)
}

func (r *queries) dropLanguages(ctx context.Context, id string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM shard_languages WHERE shard_id = ?`, id)
	return perr.WrapIf(err, perr.ErrorCodeDB, "drop languages of "+id)
}
