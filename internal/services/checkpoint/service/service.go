// Package service implements the checkpoint on top of the SQL repo.
// Writes run in transactions and are retried on transient contention
package service

import (
	"context"
	"time"

	"github.com/oscar-project/ungoliant/internal/modkit/repokit"
	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/platform/logger"
	"github.com/oscar-project/ungoliant/internal/platform/store"
	"github.com/oscar-project/ungoliant/internal/services/checkpoint/domain"
)

// Config for the checkpoint service
type Config struct {
	// StaleAfter is how long an in_progress row from another run must sit untouched
	// before Recover takes it back; 0 recovers every row
	StaleAfter time.Duration
	Retry      store.RetryPolicy
}

// Service implements domain.CheckpointPort
type Service struct {
	DB     repokit.TxRunner
	Binder repokit.Binder[domain.StorageRepo]
	Cfg    Config

	now func() time.Time
}

// New constructs the checkpoint service
func New(db repokit.TxRunner, binder repokit.Binder[domain.StorageRepo], cfg Config) *Service {
	if db == nil {
		panic("checkpoint.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("checkpoint.Service requires a non nil Repo binder")
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = store.DefaultRetry
	}
	return &Service{DB: db, Binder: binder, Cfg: cfg, now: time.Now}
}

// tx runs fn in a retried transaction
func (s *Service) tx(ctx context.Context, fn func(r domain.StorageRepo) error) error {
	return store.Retry(ctx, s.Cfg.Retry, func(ctx context.Context) error {
		return s.DB.Tx(ctx, func(q repokit.Queryer) error {
			return fn(s.Binder.Bind(q))
		})
	})
}

func (s *Service) read() domain.StorageRepo { return s.Binder.Bind(s.DB) }

// Seed inserts ids that are not known yet
func (s *Service) Seed(ctx context.Context, ids []string) (int, error) {
	var n int
	err := s.tx(ctx, func(r domain.StorageRepo) error {
		var err error
		n, err = r.Seed(ctx, ids, s.now())
		return err
	})
	if err == nil {
		logger.C(ctx).Debug().Int("ids", len(ids)).Int("new", n).Msg("checkpoint seeded")
	}
	return n, err
}

// Recover returns in_progress shards left by a crashed process to pending; call it before the first Claim of runID
func (s *Service) Recover(ctx context.Context, runID string) (int, error) {
	var n int
	now := s.now()
	err := s.tx(ctx, func(r domain.StorageRepo) error {
		var err error
		n, err = r.Recover(ctx, runID, now.Add(-s.Cfg.StaleAfter), now)
		return err
	})
	if err == nil && n > 0 {
		logger.C(ctx).Warn().Int("shards", n).Msg("recovered shards left in progress by an earlier run")
	}
	return n, err
}

// Claim moves a shard to in_progress; false means it is done or someone else holds it
func (s *Service) Claim(ctx context.Context, id, runID string) (bool, error) {
	var ok bool
	err := s.tx(ctx, func(r domain.StorageRepo) error {
		var err error
		ok, err = r.Claim(ctx, id, runID, s.now())
		return err
	})
	return ok, err
}

// MarkDone records a finished shard; a lost claim is a Conflict
func (s *Service) MarkDone(ctx context.Context, id, runID string, c domain.Completion) error {
	return s.tx(ctx, func(r domain.StorageRepo) error {
		ok, err := r.MarkDone(ctx, id, runID, c, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return perr.Newf(perr.ErrorCodeConflict, "shard %s is no longer claimed by run %s", id, runID)
		}
		return nil
	})
}

// MarkFailed records a failed shard; a lost claim is a Conflict
func (s *Service) MarkFailed(ctx context.Context, id, runID, reason string) error {
	return s.tx(ctx, func(r domain.StorageRepo) error {
		ok, err := r.MarkFailed(ctx, id, runID, reason, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return perr.Newf(perr.ErrorCodeConflict, "shard %s is no longer claimed by run %s", id, runID)
		}
		return nil
	})
}

// Get returns one shard
func (s *Service) Get(ctx context.Context, id string) (domain.Shard, error) {
	return s.read().Get(ctx, id)
}

// List returns shards in a state, or all of them
func (s *Service) List(ctx context.Context, state domain.State) ([]domain.Shard, error) {
	return s.read().List(ctx, state)
}

// Counts returns shards per state
func (s *Service) Counts(ctx context.Context) (map[domain.State]int64, error) {
	return s.read().Counts(ctx)
}

// ShardsWithLang lists done shards holding lang
func (s *Service) ShardsWithLang(ctx context.Context, lang string) (map[string]domain.LangCount, error) {
	return s.read().ShardsWithLang(ctx, lang)
}

// LangTotals aggregates languages over done shards
func (s *Service) LangTotals(ctx context.Context) ([]domain.LangTotal, error) {
	return s.read().LangTotals(ctx)
}

// Invalidate resets finished shards to pending and returns those that changed.
// Unknown ids are a NotFound error; in_progress shards are skipped with a warning
func (s *Service) Invalidate(ctx context.Context, ids []string) ([]string, error) {
	var done []string
	err := s.tx(ctx, func(r domain.StorageRepo) error {
		done = done[:0]
		now := s.now()
		for _, id := range ids {
			ok, err := r.Invalidate(ctx, id, now)
			if err != nil {
				return err
			}
			if ok {
				done = append(done, id)
				continue
			}
			sh, err := r.Get(ctx, id)
			if err != nil {
				return err
			}
			logger.C(ctx).Warn().Str("shard", id).Str("state", string(sh.State)).Msg("not invalidated")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return done, nil
}
