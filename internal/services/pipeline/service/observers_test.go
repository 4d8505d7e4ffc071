package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oscar-project/ungoliant/internal/adapters/events/natsbus"
	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/platform/metrics"
	"github.com/oscar-project/ungoliant/internal/platform/testkit"
	"github.com/oscar-project/ungoliant/internal/services/pipeline/domain"
	shdom "github.com/oscar-project/ungoliant/internal/services/shards/domain"

	"github.com/google/go-cmp/cmp"
)

type fakePub struct {
	kinds []string
	err   error
}

func (f *fakePub) Publish(_ context.Context, kind string, _ any) error {
	f.kinds = append(f.kinds, kind)
	return f.err
}

func doneReport(shard string) domain.ShardReport {
	return domain.ShardReport{
		Shard: shard, Outcome: domain.OutcomeDone, Started: true, Elapsed: 2 * time.Second,
		Result: shdom.Result{
			Malformed:      3,
			Languages:      map[string]shdom.LangStats{"fr": {Documents: 4, Bytes: 400}},
			Rejected:       map[string]int64{"blocklist:adult": 2, "quality": 1},
			RejectedByLang: map[string]int64{"fr": 1, "en": 2},
		},
	}
}

func TestMetricsObserver(t *testing.T) {
	m := metrics.New()
	obs := Observers{nil, MetricsObserver{M: m}}
	ctx := context.Background()

	obs.ShardStarted(ctx, "a")
	obs.ShardFinished(ctx, doneReport("a"))
	obs.ShardFinished(ctx, domain.ShardReport{Shard: "b", Outcome: domain.OutcomeSkipped})
	obs.ShardFinished(ctx, domain.ShardReport{Shard: "c", Outcome: domain.OutcomeLost})
	obs.AddBudget(512)
	obs.RunFinished(ctx, domain.NewSummary("r", 3))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	testkit.MustContain(t, out, `ungoliant_pipeline_shards_total{outcome="done"} 1`)
	testkit.MustContain(t, out, `ungoliant_pipeline_shards_total{outcome="skipped"} 1`)
	testkit.MustContain(t, out, `ungoliant_pipeline_shards_total{outcome="lost"} 1`)
	testkit.MustContain(t, out, `ungoliant_pipeline_shards_in_flight 0`)
	testkit.MustContain(t, out, `ungoliant_pipeline_documents_total{lang="fr"} 4`)
	testkit.MustContain(t, out, `ungoliant_pipeline_rejected_documents_total{reason="blocklist:adult",stage="blocklist"} 2`)
	testkit.MustContain(t, out, `ungoliant_pipeline_rejected_documents_total{reason="quality",stage="content"} 1`)
	testkit.MustContain(t, out, `ungoliant_pipeline_malformed_records_total 3`)
	testkit.MustContain(t, out, `ungoliant_pipeline_inflight_budget_bytes 512`)
}

func TestEventObserver(t *testing.T) {
	pub := &fakePub{err: perr.New(perr.ErrorCodeUnavailable, "nats down")}
	obs := EventObserver{Pub: pub}
	ctx := context.Background()

	obs.ShardStarted(ctx, "a")
	obs.ShardFinished(ctx, doneReport("a"))
	obs.ShardFinished(ctx, domain.ShardReport{Shard: "b", Outcome: domain.OutcomeFailed, Reason: "decompress: x"})
	obs.ShardFinished(ctx, domain.ShardReport{Shard: "c", Outcome: domain.OutcomeSkipped})
	obs.RunFinished(ctx, domain.NewSummary("r", 3))

	want := []string{natsbus.KindShardDone, natsbus.KindShardFailed, natsbus.KindRunFinished}
	if len(pub.kinds) != len(want) {
		t.Fatalf("published %v, want %v", pub.kinds, want)
	}
	for i := range want {
		if pub.kinds[i] != want[i] {
			t.Fatalf("published %v, want %v", pub.kinds, want)
		}
	}
}

func TestSummaryAdd(t *testing.T) {
	s := domain.NewSummary("r", 4)
	s.Add(doneReport("a"))
	s.Add(doneReport("b"))
	s.Add(domain.ShardReport{Shard: "c", Outcome: domain.OutcomeFailed, Reason: "parse: bad"})
	s.Add(domain.ShardReport{Shard: "d", Outcome: domain.OutcomeLost})

	if s.Done != 2 || s.Lost != 1 || s.Failed["c"] != "parse: bad" || s.Malformed != 6 {
		t.Fatalf("summary = %+v", s)
	}
	if s.Documents() != 8 || s.Languages["fr"].Bytes != 800 || s.Rejected["blocklist:adult"] != 4 {
		t.Fatalf("totals = %+v", s)
	}
	want := map[string]domain.LangTotal{
		"fr": {Documents: 8, Bytes: 800, Rejected: 2},
		"en": {Rejected: 4},
	}
	if diff := cmp.Diff(want, s.Languages); diff != "" {
		t.Fatalf("languages (-want +got):\n%s", diff)
	}
	if l := s.Langs(); len(l) != 2 || l[0] != "en" || l[1] != "fr" {
		t.Fatalf("langs = %v", l)
	}
}
