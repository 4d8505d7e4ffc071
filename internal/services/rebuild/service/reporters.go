package service

import (
	"context"

	"github.com/oscar-project/ungoliant/internal/adapters/events/natsbus"
	"github.com/oscar-project/ungoliant/internal/platform/logger"
	"github.com/oscar-project/ungoliant/internal/platform/metrics"
	"github.com/oscar-project/ungoliant/internal/services/rebuild/domain"
)

// Reporters fans a manifest out in order; nil entries are ignored
type Reporters []domain.Reporter

func (r Reporters) Rebuilt(ctx context.Context, m domain.Manifest) {
	for _, x := range r {
		if x != nil {
			x.Rebuilt(ctx, m)
		}
	}
}

// MetricsReporter counts corpus documents and duplicates
type MetricsReporter struct {
	M *metrics.Pipeline
}

func (r MetricsReporter) Rebuilt(_ context.Context, m domain.Manifest) {
	r.M.Rebuilt(m.Lang, m.Documents, m.Duplicates)
}

// Publisher is satisfied by *natsbus.Bus
type Publisher interface {
	Publish(ctx context.Context, kind string, data any) error
}

// EventReporter publishes corpus.built
type EventReporter struct {
	Pub Publisher
}

func (r EventReporter) Rebuilt(ctx context.Context, m domain.Manifest) {
	if err := r.Pub.Publish(ctx, natsbus.KindCorpusBuilt, m); err != nil {
		logger.C(ctx).Warn().Err(err).Str("lang", m.Lang).Msg("event publish failed")
	}
}
