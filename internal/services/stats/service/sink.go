// Package service records pipeline and rebuild outcomes in ClickHouse
package service

import (
	"context"
	"sort"
	"time"

	"github.com/oscar-project/ungoliant/internal/platform/logger"
	pldom "github.com/oscar-project/ungoliant/internal/services/pipeline/domain"
	rbdom "github.com/oscar-project/ungoliant/internal/services/rebuild/domain"
	"github.com/oscar-project/ungoliant/internal/services/stats/domain"
	"github.com/oscar-project/ungoliant/internal/services/stats/repo"
)

// Writer is the insert surface of the repo
type Writer interface {
	Insert(ctx context.Context, table string, rows [][]any) error
}

// Sink is a pipeline observer and a rebuild reporter. Inserts are bounded by Timeout
// and never fail the caller
type Sink struct {
	W       Writer
	Timeout time.Duration
	now     func() time.Time
}

var (
	_ pldom.Observer = (*Sink)(nil)
	_ rbdom.Reporter = (*Sink)(nil)
)

// New returns a sink over w
func New(w Writer, timeout time.Duration) *Sink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Sink{W: w, Timeout: timeout, now: time.Now}
}

func (s *Sink) ShardStarted(context.Context, string) {}

// ShardFinished records shards a worker actually processed; skipped shards are not rows
func (s *Sink) ShardFinished(ctx context.Context, r pldom.ShardReport) {
	if !r.Started {
		return
	}
	at := r.At
	if at.IsZero() {
		at = s.now()
	}
	res := r.Result
	s.insert(ctx, repo.TableShards, [][]any{{
		r.RunID, r.Shard, string(r.Outcome), r.Reason,
		uint64(res.Records), uint64(res.Malformed), uint64(res.RejectedTotal()), uint64(res.Documents()),
		uint64(r.Elapsed.Milliseconds()), at.UTC(),
	}})
	if r.Outcome != pldom.OutcomeDone || len(res.Languages) == 0 {
		return
	}
	langs := make([]string, 0, len(res.Languages))
	for l := range res.Languages {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	rows := make([][]any, 0, len(langs))
	for _, l := range langs {
		st := res.Languages[l]
		rows = append(rows, []any{r.RunID, r.Shard, l, uint64(st.Documents), uint64(st.Bytes), at.UTC()})
	}
	s.insert(ctx, repo.TableShardLang, rows)
}

// RunFinished records the run summary
func (s *Sink) RunFinished(ctx context.Context, sum pldom.Summary) {
	s.insert(ctx, repo.TableRuns, [][]any{{
		sum.RunID, uint32(sum.Shards), uint32(sum.Done), uint32(len(sum.Failed)), uint32(sum.Skipped), uint32(sum.Lost),
		uint64(sum.Documents()), uint64(sum.Malformed), uint64(sum.Elapsed.Milliseconds()), s.now().UTC(),
	}})
}

// Rebuilt records a corpus build
func (s *Sink) Rebuilt(ctx context.Context, m rbdom.Manifest) {
	s.insert(ctx, repo.TableCorpora, [][]any{{
		m.Lang, uint64(m.Documents), uint64(m.Duplicates), uint64(m.FilteredTotal()), uint64(m.Size), m.Digest, s.now().UTC(),
	}})
}

func (s *Sink) insert(ctx context.Context, table string, rows [][]any) {
	ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.Timeout)
	defer cancel()
	if err := s.W.Insert(ictx, table, rows); err != nil {
		logger.C(ctx).Warn().Err(err).Str("table", table).Msg("stats insert failed")
	}
}

// Reader serves history from the repo
type Reader struct {
	R interface {
		Runs(ctx context.Context, limit int) ([]domain.RunRow, error)
		Corpora(ctx context.Context, lang string, limit int) ([]domain.CorpusRow, error)
	}
}

// Runs clamps limit to [1,500]
func (r Reader) Runs(ctx context.Context, limit int) ([]domain.RunRow, error) {
	return r.R.Runs(ctx, clamp(limit))
}

// Corpora clamps limit to [1,500]
func (r Reader) Corpora(ctx context.Context, lang string, limit int) ([]domain.CorpusRow, error) {
	return r.R.Corpora(ctx, lang, clamp(limit))
}

func clamp(n int) int { return min(max(n, 1), 500) }
