package service

import (
	"context"

	"github.com/oscar-project/ungoliant/internal/adapters/events/natsbus"
	"github.com/oscar-project/ungoliant/internal/core/quality"
	"github.com/oscar-project/ungoliant/internal/platform/logger"
	"github.com/oscar-project/ungoliant/internal/platform/metrics"
	"github.com/oscar-project/ungoliant/internal/services/pipeline/domain"
)

// Observers fans every call out in order; nil entries are ignored
type Observers []domain.Observer

var _ domain.Observer = Observers(nil)

func (o Observers) ShardStarted(ctx context.Context, shard string) {
	for _, x := range o {
		if x != nil {
			x.ShardStarted(ctx, shard)
		}
	}
}

func (o Observers) ShardFinished(ctx context.Context, r domain.ShardReport) {
	for _, x := range o {
		if x != nil {
			x.ShardFinished(ctx, r)
		}
	}
}

func (o Observers) RunFinished(ctx context.Context, s domain.Summary) {
	for _, x := range o {
		if x != nil {
			x.RunFinished(ctx, s)
		}
	}
}

// AddBudget forwards in-flight budget moves to members that track them
func (o Observers) AddBudget(n int64) {
	for _, x := range o {
		if b, ok := x.(interface{ AddBudget(int64) }); ok {
			b.AddBudget(n)
		}
	}
}

// MetricsObserver feeds the prometheus collectors
type MetricsObserver struct {
	M *metrics.Pipeline
}

func (m MetricsObserver) ShardStarted(context.Context, string) { m.M.StartShard() }

func (m MetricsObserver) ShardFinished(_ context.Context, r domain.ShardReport) {
	if !r.Started {
		m.M.CountShard(string(r.Outcome))
		return
	}
	m.M.FinishShard(string(r.Outcome), r.Elapsed)
	if r.Outcome != domain.OutcomeDone {
		return
	}
	for lang, st := range r.Result.Languages {
		m.M.AddDocuments(lang, st.Documents, st.Bytes)
	}
	for reason, n := range r.Result.Rejected {
		stage := "content"
		if quality.IsBlocklistReason(reason) {
			stage = "blocklist"
		}
		m.M.AddRejected(stage, reason, n)
	}
	m.M.AddMalformed(r.Result.Malformed)
}

func (MetricsObserver) RunFinished(context.Context, domain.Summary) {}

// AddBudget moves the in-flight bytes gauge
func (m MetricsObserver) AddBudget(n int64) { m.M.AddBudget(n) }

// Publisher is satisfied by *natsbus.Bus
type Publisher interface {
	Publish(ctx context.Context, kind string, data any) error
}

// EventObserver publishes shard and run events; publish errors are logged and dropped
type EventObserver struct {
	Pub Publisher
}

func (EventObserver) ShardStarted(context.Context, string) {}

func (e EventObserver) ShardFinished(ctx context.Context, r domain.ShardReport) {
	var kind string
	switch r.Outcome {
	case domain.OutcomeDone:
		kind = natsbus.KindShardDone
	case domain.OutcomeFailed:
		kind = natsbus.KindShardFailed
	default:
		return
	}
	e.publish(ctx, kind, r)
}

func (e EventObserver) RunFinished(ctx context.Context, s domain.Summary) {
	e.publish(ctx, natsbus.KindRunFinished, s)
}

func (e EventObserver) publish(ctx context.Context, kind string, data any) {
	if err := e.Pub.Publish(ctx, kind, data); err != nil {
		logger.C(ctx).Warn().Err(err).Str("kind", kind).Msg("event publish failed")
	}
}
