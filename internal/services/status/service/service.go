// Package service answers operator questions about the checkpoint and corpus history
package service

import (
	"context"
	"os"
	"sort"

	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/platform/logger"
	cpdom "github.com/oscar-project/ungoliant/internal/services/checkpoint/domain"
	"github.com/oscar-project/ungoliant/internal/services/shards/output"
	stdom "github.com/oscar-project/ungoliant/internal/services/stats/domain"
)

// ShardList is the checkpoint view for one state filter
type ShardList struct {
	State  string                `json:"state,omitempty"`
	Counts map[cpdom.State]int64 `json:"counts"`
	Shards []cpdom.Shard         `json:"shards"`
	// Staging names unpublished shard directories in the output root
	Staging []string `json:"staging,omitempty"`
}

// InvalidateInput names the shards to reprocess
type InvalidateInput struct {
	IDs []string `json:"ids" validate:"required,min=1,max=10000,dive,required"`
}

// InvalidateResult lists the shards reset to pending and whose output was removed
type InvalidateResult struct {
	Invalidated []string `json:"invalidated"`
	Removed     []string `json:"removed"`
}

// Service reads the checkpoint and, when ClickHouse is wired, run history
type Service struct {
	Checkpoint cpdom.CheckpointPort
	Layout     output.Layout

	// History is nil when the statistics sink is disabled
	History stdom.ReaderPort
}

// New panics without a checkpoint
func New(cp cpdom.CheckpointPort, l output.Layout, h stdom.ReaderPort) *Service {
	if cp == nil {
		panic("status: nil checkpoint")
	}
	return &Service{Checkpoint: cp, Layout: l, History: h}
}

// Shards lists shards in state; an empty state lists all of them
func (s *Service) Shards(ctx context.Context, state string) (ShardList, error) {
	st, err := cpdom.ParseState(state)
	if err != nil {
		return ShardList{}, perr.WithField(err, "state")
	}
	counts, err := s.Checkpoint.Counts(ctx)
	if err != nil {
		return ShardList{}, err
	}
	shards, err := s.Checkpoint.List(ctx, st)
	if err != nil {
		return ShardList{}, err
	}
	if shards == nil {
		shards = []cpdom.Shard{}
	}
	staging, err := s.Layout.Staging()
	if err != nil {
		return ShardList{}, err
	}
	return ShardList{State: state, Counts: counts, Shards: shards, Staging: staging}, nil
}

// Shard returns one checkpoint row
func (s *Service) Shard(ctx context.Context, id string) (cpdom.Shard, error) {
	if id == "" {
		return cpdom.Shard{}, perr.WithField(perr.InvalidArgf("shard id is required"), "id")
	}
	return s.Checkpoint.Get(ctx, id)
}

// Languages returns per-language totals over done shards, largest first
func (s *Service) Languages(ctx context.Context) ([]cpdom.LangTotal, error) {
	out, err := s.Checkpoint.LangTotals(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Documents != out[j].Documents {
			return out[i].Documents > out[j].Documents
		}
		return out[i].Lang < out[j].Lang
	})
	return out, nil
}

// Invalidate resets shards to pending and removes their intermediate output so the
// next run reprocesses them from scratch
func (s *Service) Invalidate(ctx context.Context, in InvalidateInput) (InvalidateResult, error) {
	ids, err := s.Checkpoint.Invalidate(ctx, in.IDs)
	if err != nil {
		return InvalidateResult{}, err
	}
	res := InvalidateResult{Invalidated: ids, Removed: []string{}}
	if res.Invalidated == nil {
		res.Invalidated = []string{}
	}
	if s.Layout.Root == "" {
		return res, nil
	}
	log := logger.C(ctx)
	for _, id := range ids {
		dir := s.Layout.ShardDir(id)
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return res, perr.Wrapf(err, perr.ErrorCodeIO, "remove output of %s", id)
		}
		_ = os.RemoveAll(s.Layout.StagingDir(id))
		res.Removed = append(res.Removed, id)
	}
	log.Info().Int("invalidated", len(res.Invalidated)).Int("removed", len(res.Removed)).Msg("shards invalidated")
	return res, nil
}

// Runs returns recent pipeline runs
func (s *Service) Runs(ctx context.Context, limit int) ([]stdom.RunRow, error) {
	if s.History == nil {
		return nil, perr.New(perr.ErrorCodeUnavailable, "run history needs SERVICE_CLICKHOUSE_ENABLED")
	}
	return s.History.Runs(ctx, limit)
}

// Corpora returns recent corpus builds, optionally for one language
func (s *Service) Corpora(ctx context.Context, lang string, limit int) ([]stdom.CorpusRow, error) {
	if s.History == nil {
		return nil, perr.New(perr.ErrorCodeUnavailable, "corpus history needs SERVICE_CLICKHOUSE_ENABLED")
	}
	return s.History.Corpora(ctx, lang, limit)
}
