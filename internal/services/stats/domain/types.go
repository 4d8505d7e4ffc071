// Package domain defines the statistics rows kept in ClickHouse
package domain

import (
	"context"
	"time"
)

// RunRow is one finished pipeline run
type RunRow struct {
	RunID     string        `json:"run_id"`
	At        time.Time     `json:"at"`
	Shards    uint32        `json:"shards"`
	Done      uint32        `json:"done"`
	Failed    uint32        `json:"failed"`
	Skipped   uint32        `json:"skipped"`
	Lost      uint32        `json:"lost"`
	Documents uint64        `json:"documents"`
	Malformed uint64        `json:"malformed"`
	Elapsed   time.Duration `json:"elapsed"`
}

// CorpusRow is one final corpus build
type CorpusRow struct {
	Lang       string    `json:"lang"`
	At         time.Time `json:"at"`
	Documents  uint64    `json:"documents"`
	Duplicates uint64    `json:"duplicates"`
	Filtered   uint64    `json:"filtered"`
	Size       uint64    `json:"size"`
	Digest     string    `json:"digest"`
}

// ReaderPort serves recent history to the status surface
type ReaderPort interface {
	Runs(ctx context.Context, limit int) ([]RunRow, error)
	Corpora(ctx context.Context, lang string, limit int) ([]CorpusRow, error)
}
