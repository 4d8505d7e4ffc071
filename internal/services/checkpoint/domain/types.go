// Package domain defines the checkpoint records and ports
package domain

import (
	"time"

	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
)

// State is the lifecycle of one shard
type State string

const (
	StatePending    State = "pending"
	StateInProgress State = "in_progress"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// States lists every state in lifecycle order
var States = []State{StatePending, StateInProgress, StateDone, StateFailed}

// ParseState accepts a state name; empty means any state
func ParseState(s string) (State, error) {
	if s == "" {
		return "", nil
	}
	for _, st := range States {
		if string(st) == s {
			return st, nil
		}
	}
	return "", perr.InvalidArgf("unknown shard state %q", s)
}

// LangCount is what one shard contributed to a language
type LangCount struct {
	Documents int64 `json:"documents"`
	Bytes     int64 `json:"bytes"`
}

// Completion is recorded with the done transition
type Completion struct {
	Records   int64
	Malformed int64
	Rejected  int64
	Truncated bool
	Elapsed   time.Duration
	Languages map[string]LangCount
}

// Documents sums the per-language document counts
func (c Completion) Documents() int64 {
	var n int64
	for _, l := range c.Languages {
		n += l.Documents
	}
	return n
}

// Bytes sums the per-language text bytes
func (c Completion) Bytes() int64 {
	var n int64
	for _, l := range c.Languages {
		n += l.Bytes
	}
	return n
}

// Shard is one checkpoint row
type Shard struct {
	ID        string               `json:"id"`
	State     State                `json:"state"`
	Reason    string               `json:"reason,omitempty"`
	Attempts  int                  `json:"attempts"`
	RunID     string               `json:"run_id,omitempty"`
	Records   int64                `json:"records"`
	Malformed int64                `json:"malformed"`
	Rejected  int64                `json:"rejected"`
	Truncated bool                 `json:"truncated"`
	Documents int64                `json:"documents"`
	Bytes     int64                `json:"bytes"`
	ElapsedMS int64                `json:"elapsed_ms"`
	UpdatedAt time.Time            `json:"updated_at"`
	Languages map[string]LangCount `json:"languages,omitempty"`
}

// LangTotal aggregates a language over done shards
type LangTotal struct {
	Lang      string `json:"lang"`
	Shards    int64  `json:"shards"`
	Documents int64  `json:"documents"`
	Bytes     int64  `json:"bytes"`
}
