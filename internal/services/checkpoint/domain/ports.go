package domain

import (
	"context"
	"time"
)

// StorageRepo is the SQL surface of the checkpoint, bound to a Queryer (pool or tx)
type StorageRepo interface {
	// Seed inserts ids as pending unless they already exist; returns how many were new
	Seed(ctx context.Context, ids []string, now time.Time) (int, error)

	// Recover turns in_progress rows owned by runID, or untouched since cutoff, back into pending
	Recover(ctx context.Context, runID string, cutoff, now time.Time) (int, error)

	// Claim moves pending|failed to in_progress for runID; false means another worker won
	Claim(ctx context.Context, id, runID string, now time.Time) (bool, error)

	// MarkDone records the completion and per-language counts; false when the claim was lost
	MarkDone(ctx context.Context, id, runID string, c Completion, now time.Time) (bool, error)

	// MarkFailed records reason; false when the claim was lost
	MarkFailed(ctx context.Context, id, runID, reason string, now time.Time) (bool, error)

	Get(ctx context.Context, id string) (Shard, error)
	List(ctx context.Context, state State) ([]Shard, error)
	Counts(ctx context.Context) (map[State]int64, error)

	// ShardsWithLang returns done shard ids that produced documents in lang, with their counts
	ShardsWithLang(ctx context.Context, lang string) (map[string]LangCount, error)
	LangTotals(ctx context.Context) ([]LangTotal, error)

	// Invalidate resets done|failed rows to pending and drops their language counts
	Invalidate(ctx context.Context, id string, now time.Time) (bool, error)
}

// CheckpointPort is what the orchestrator, the assembler and the maintenance commands use
type CheckpointPort interface {
	Seed(ctx context.Context, ids []string) (int, error)
	Recover(ctx context.Context, runID string) (int, error)
	Claim(ctx context.Context, id, runID string) (bool, error)
	MarkDone(ctx context.Context, id, runID string, c Completion) error
	MarkFailed(ctx context.Context, id, runID, reason string) error
	Get(ctx context.Context, id string) (Shard, error)
	List(ctx context.Context, state State) ([]Shard, error)
	Counts(ctx context.Context) (map[State]int64, error)
	ShardsWithLang(ctx context.Context, lang string) (map[string]LangCount, error)
	LangTotals(ctx context.Context) ([]LangTotal, error)
	Invalidate(ctx context.Context, ids []string) ([]string, error)
}
