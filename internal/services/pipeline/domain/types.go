// Package domain defines the run summary, shard reports and ports of the orchestrator
package domain

import (
	"context"
	"io"
	"sort"
	"time"

	shdom "github.com/oscar-project/ungoliant/internal/services/shards/domain"
)

// Outcome is what happened to one shard in a run
type Outcome string

const (
	OutcomeDone    Outcome = "done"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped" // already done before the run
	OutcomeLost    Outcome = "lost"    // another worker or host owns the claim
)

// ShardReport is published once per shard that a worker picked up
type ShardReport struct {
	RunID   string        `json:"run_id"`
	Shard   string        `json:"shard"`
	Outcome Outcome       `json:"outcome"`
	Reason  string        `json:"reason,omitempty"`
	Result  shdom.Result  `json:"result"`
	Elapsed time.Duration `json:"elapsed"`
	At      time.Time     `json:"at"`
	Started bool          `json:"-"` // claimed and handed to the processor
}

// LangTotal is one language's output over a run
type LangTotal struct {
	Documents int64 `json:"documents"`
	Bytes     int64 `json:"bytes"`
	Rejected  int64 `json:"rejected"`
}

// Summary is returned by Run
type Summary struct {
	RunID     string               `json:"run_id"`
	Shards    int                  `json:"shards"`
	Done      int                  `json:"done"`
	Failed    map[string]string    `json:"failed,omitempty"` // shard -> reason
	Skipped   int                  `json:"skipped"`
	Lost      int                  `json:"lost"`
	Pending   int                  `json:"pending"` // not dispatched because the run stopped early
	Records   int64                `json:"records"`
	Malformed int64                `json:"malformed"`
	Rejected  map[string]int64     `json:"rejected,omitempty"`
	Languages map[string]LangTotal `json:"languages,omitempty"`
	Elapsed   time.Duration        `json:"elapsed"`
}

// NewSummary returns a summary with its maps allocated
func NewSummary(runID string, shards int) Summary {
	return Summary{
		RunID:     runID,
		Shards:    shards,
		Failed:    map[string]string{},
		Rejected:  map[string]int64{},
		Languages: map[string]LangTotal{},
	}
}

// Add folds one shard report into the summary
func (s *Summary) Add(r ShardReport) {
	switch r.Outcome {
	case OutcomeDone:
		s.Done++
		s.Records += r.Result.Records
		s.Malformed += r.Result.Malformed
		for reason, n := range r.Result.Rejected {
			s.Rejected[reason] += n
		}
		for lang, st := range r.Result.Languages {
			t := s.Languages[lang]
			t.Documents += st.Documents
			t.Bytes += st.Bytes
			s.Languages[lang] = t
		}
		for lang, n := range r.Result.RejectedByLang {
			t := s.Languages[lang]
			t.Rejected += n
			s.Languages[lang] = t
		}
	case OutcomeFailed:
		s.Failed[r.Shard] = r.Reason
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeLost:
		s.Lost++
	}
}

// Documents sums documents over languages
func (s Summary) Documents() int64 {
	var n int64
	for _, l := range s.Languages {
		n += l.Documents
	}
	return n
}

// Langs returns the languages that produced or lost documents, sorted
func (s Summary) Langs() []string {
	out := make([]string, 0, len(s.Languages))
	for l := range s.Languages {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Source acquires shard byte streams; commoncrawl.DirSource and HTTPSource satisfy it
type Source interface {
	List(ctx context.Context) ([]string, error)
	Open(ctx context.Context, id string) (io.ReadCloser, error)
	Size(ctx context.Context, id string) (int64, error)
}

// Observer is told about every shard a worker handled and about the end of the run.
// Implementations must not block for long and never fail the run
type Observer interface {
	ShardStarted(ctx context.Context, shard string)
	ShardFinished(ctx context.Context, r ShardReport)
	RunFinished(ctx context.Context, s Summary)
}

// RunnerPort is the orchestrator surface used by the CLI
type RunnerPort interface {
	Run(ctx context.Context, ids []string, workers int) (Summary, error)
}
