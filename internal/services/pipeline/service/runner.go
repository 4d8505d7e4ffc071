// Package service runs shard processors over a worker pool against the checkpoint
package service

import (
	"context"
	"sync"
	"time"

	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/platform/logger"
	cpdom "github.com/oscar-project/ungoliant/internal/services/checkpoint/domain"
	"github.com/oscar-project/ungoliant/internal/services/pipeline/domain"
	shdom "github.com/oscar-project/ungoliant/internal/services/shards/domain"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Config holds the orchestrator knobs
type Config struct {
	// RunID tags checkpoint claims and log lines; required
	RunID string

	// InFlightBudget caps the estimated compressed bytes admitted and not yet finished; <=0 unlimited
	InFlightBudget int64

	// OpenTimeout bounds acquiring one shard stream (a download on cache miss); 0 means none
	OpenTimeout time.Duration
}

// Runner drives the shard processor over a fixed pool of workers
type Runner struct {
	Checkpoint cpdom.CheckpointPort
	Source     domain.Source
	Processor  shdom.ProcessorPort
	Observer   domain.Observer
	Cfg        Config

	now func() time.Time
}

// New constructs a Runner; obs may be nil
func New(cp cpdom.CheckpointPort, src domain.Source, proc shdom.ProcessorPort, obs domain.Observer, cfg Config) *Runner {
	if cp == nil {
		panic("pipeline.Runner requires a non nil checkpoint")
	}
	if src == nil {
		panic("pipeline.Runner requires a non nil source")
	}
	if proc == nil {
		panic("pipeline.Runner requires a non nil processor")
	}
	if cfg.RunID == "" {
		panic("pipeline.Runner requires a run id")
	}
	if obs == nil {
		obs = Observers{}
	}
	return &Runner{Checkpoint: cp, Source: src, Processor: proc, Observer: obs, Cfg: cfg, now: time.Now}
}

type job struct {
	id     string
	weight int64
}

// Run processes every id that is not already done and returns when the queue is drained.
// Cancelling ctx stops dispatch; shards already started run to completion and are checkpointed.
// Per-shard failures are recorded in the checkpoint and the summary; only checkpoint
// errors abort the run
func (r *Runner) Run(ctx context.Context, ids []string, workers int) (domain.Summary, error) {
	workers = max(workers, 1)
	start := r.now()
	ctx = logger.WithRun(ctx, r.Cfg.RunID)
	log := logger.C(ctx)

	ids = dedupe(ids)
	sum := domain.NewSummary(r.Cfg.RunID, len(ids))

	if _, err := r.Checkpoint.Seed(ctx, ids); err != nil {
		return sum, perr.WithOp(err, "seed checkpoint")
	}
	if _, err := r.Checkpoint.Recover(ctx, r.Cfg.RunID); err != nil {
		return sum, perr.WithOp(err, "recover checkpoint")
	}
	done, err := r.Checkpoint.List(ctx, cpdom.StateDone)
	if err != nil {
		return sum, perr.WithOp(err, "load checkpoint")
	}
	isDone := make(map[string]bool, len(done))
	for _, s := range done {
		isDone[s.ID] = true
	}

	var (
		mu   sync.Mutex
		todo []string
	)
	for _, id := range ids {
		if isDone[id] {
			rep := domain.ShardReport{RunID: r.Cfg.RunID, Shard: id, Outcome: domain.OutcomeSkipped, At: r.now()}
			sum.Add(rep)
			r.Observer.ShardFinished(ctx, rep)
			continue
		}
		todo = append(todo, id)
	}
	log.Info().Int("shards", len(ids)).Int("skipped", sum.Skipped).Int("todo", len(todo)).
		Int("workers", workers).Str("budget", budgetString(r.Cfg.InFlightBudget)).Msg("pipeline run starting")

	record := func(rep domain.ShardReport) {
		mu.Lock()
		sum.Add(rep)
		mu.Unlock()
		r.Observer.ShardFinished(ctx, rep)
	}

	budget := r.Cfg.InFlightBudget
	var sem *semaphore.Weighted
	if budget > 0 {
		sem = semaphore.NewWeighted(budget)
	}
	release := func(j job) {
		if sem != nil {
			sem.Release(j.weight)
			r.budget(-j.weight)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan job, workers)
	dispatched := 0

	// feeder: admits shards against the in-flight budget; the bounded queue is the backpressure
	g.Go(func() error {
		defer close(queue)
		for _, id := range todo {
			if gctx.Err() != nil {
				return nil
			}
			j := job{id: id}
			if sem != nil {
				j.weight = r.weigh(gctx, id, budget)
				if err := sem.Acquire(gctx, j.weight); err != nil {
					return nil
				}
				r.budget(j.weight)
			}
			select {
			case queue <- j:
				dispatched++
			case <-gctx.Done():
				release(j)
				return nil
			}
		}
		return nil
	})

	for range workers {
		g.Go(func() error {
			for j := range queue {
				if gctx.Err() != nil {
					// queued but never started
					release(j)
					mu.Lock()
					sum.Pending++
					mu.Unlock()
					continue
				}
				rep, err := r.handle(gctx, j.id)
				release(j)
				if err != nil {
					return err
				}
				record(rep)
			}
			return nil
		})
	}

	err = g.Wait()
	for j := range queue {
		release(j)
		sum.Pending++
	}
	sum.Pending += len(todo) - dispatched
	sum.Elapsed = r.now().Sub(start)
	r.Observer.RunFinished(ctx, sum)

	ev := log.Info()
	if len(sum.Failed) > 0 || err != nil {
		ev = log.Warn()
	}
	ev.Err(err).Int("done", sum.Done).Int("failed", len(sum.Failed)).Int("skipped", sum.Skipped).
		Int("lost", sum.Lost).Int("pending", sum.Pending).Int64("documents", sum.Documents()).
		Dur("elapsed", sum.Elapsed).Msg("pipeline run finished")

	if err != nil {
		return sum, err
	}
	if cerr := ctx.Err(); cerr != nil {
		return sum, perr.Wrap(cerr, perr.ErrorCodeCanceled, "pipeline run interrupted")
	}
	return sum, nil
}

// handle owns one shard from claim to checkpoint. Once claimed the shard is no longer
// bound to ctx cancellation so it is never left half processed by a graceful stop.
// The returned error is fatal to the run
func (r *Runner) handle(ctx context.Context, id string) (domain.ShardReport, error) {
	rep := domain.ShardReport{RunID: r.Cfg.RunID, Shard: id}
	won, err := r.Checkpoint.Claim(ctx, id, r.Cfg.RunID)
	if err != nil {
		return rep, perr.WithOp(err, "claim "+id)
	}
	if !won {
		rep.Outcome, rep.At = domain.OutcomeLost, r.now()
		logger.C(ctx).Debug().Str("shard_id", id).Msg("claim lost")
		return rep, nil
	}

	wctx := logger.WithShard(context.WithoutCancel(ctx), id)
	log := logger.C(wctx)
	r.Observer.ShardStarted(wctx, id)
	rep.Started = true
	start := r.now()

	res, procErr := r.process(wctx, id)
	rep.Result, rep.Elapsed = res, r.now().Sub(start)

	if procErr != nil {
		rep.Outcome, rep.Reason = domain.OutcomeFailed, perr.Reason(procErr)
		log.Warn().Err(procErr).Str("code", perr.CodeOf(procErr).String()).Msg("shard failed")
		err = r.Checkpoint.MarkFailed(wctx, id, r.Cfg.RunID, rep.Reason)
	} else {
		rep.Outcome = domain.OutcomeDone
		log.Info().Int64("records", res.Records).Int64("documents", res.Documents()).
			Int64("malformed", res.Malformed).Dur("elapsed", rep.Elapsed).Msg("shard done")
		err = r.Checkpoint.MarkDone(wctx, id, r.Cfg.RunID, completion(res, rep.Elapsed))
	}
	rep.At = r.now()
	if err != nil {
		if perr.IsCode(err, perr.ErrorCodeConflict) {
			// recovered by another run while we worked; its outcome stands
			log.Warn().Err(err).Msg("claim lost before checkpoint")
			rep.Outcome, rep.Reason = domain.OutcomeLost, ""
			return rep, nil
		}
		return rep, perr.WithOp(err, "checkpoint "+id)
	}
	return rep, nil
}

func (r *Runner) process(ctx context.Context, id string) (shdom.Result, error) {
	octx, cancel := ctx, context.CancelFunc(func() {})
	if r.Cfg.OpenTimeout > 0 {
		octx, cancel = context.WithTimeout(ctx, r.Cfg.OpenTimeout)
	}
	rc, err := r.Source.Open(octx, id)
	cancel()
	if err != nil {
		return shdom.Result{Shard: id}, err
	}
	defer rc.Close()
	return r.Processor.Process(ctx, id, rc)
}

// weigh is the budget share of one shard, capped at the whole budget.
// Unknown sizes weigh 1; the worker surfaces the real error on Open
func (r *Runner) weigh(ctx context.Context, id string, budget int64) int64 {
	n, err := r.Source.Size(ctx, id)
	if err != nil || n <= 0 {
		return 1
	}
	return min(n, budget)
}

func (r *Runner) budget(n int64) {
	if b, ok := r.Observer.(interface{ AddBudget(int64) }); ok {
		b.AddBudget(n)
	}
}

func completion(res shdom.Result, elapsed time.Duration) cpdom.Completion {
	c := cpdom.Completion{
		Records:   res.Records,
		Malformed: res.Malformed,
		Rejected:  res.RejectedTotal(),
		Truncated: res.Truncated,
		Elapsed:   elapsed,
		Languages: make(map[string]cpdom.LangCount, len(res.Languages)),
	}
	for lang, st := range res.Languages {
		c.Languages[lang] = cpdom.LangCount{Documents: st.Documents, Bytes: st.Bytes}
	}
	return c
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func budgetString(n int64) string {
	if n <= 0 {
		return "unlimited"
	}
	return humanize.IBytes(uint64(n))
}
