package module

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oscar-project/ungoliant/internal/adapters/ingest/commoncrawl"
	"github.com/oscar-project/ungoliant/internal/modkit"
	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/platform/metrics"
	"github.com/oscar-project/ungoliant/internal/platform/store"
	"github.com/oscar-project/ungoliant/internal/platform/testkit"
	cpdom "github.com/oscar-project/ungoliant/internal/services/checkpoint/domain"
	cpmod "github.com/oscar-project/ungoliant/internal/services/checkpoint/module"
	"github.com/oscar-project/ungoliant/internal/services/pipeline/domain"
	shmod "github.com/oscar-project/ungoliant/internal/services/shards/module"
	"github.com/oscar-project/ungoliant/internal/services/shards/output"
)

func TestFromConfig(t *testing.T) {
	o := FromConfig(modkit.Deps{}.Cfg)
	if o.Workers < 1 || o.InFlightBudget != 4_000_000_000 || o.RunID != "" {
		t.Fatalf("defaults = %+v", o)
	}
	t.Setenv("CORE_PIPELINE_WORKERS", "3")
	t.Setenv("CORE_PIPELINE_BUDGET", "1GiB")
	o = FromConfig(modkit.Deps{}.Cfg)
	if o.Workers != 3 || o.InFlightBudget != 1<<30 {
		t.Fatalf("env = %+v", o)
	}
}

func TestNew_InvalidWorkers(t *testing.T) {
	t.Setenv("CORE_PIPELINE_WORKERS", "0")
	_, err := New(modkit.Deps{}, nil, nil, nil)
	if !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("err = %v", err)
	}
}

type rig struct {
	deps modkit.Deps
	cp   cpdom.CheckpointPort
	src  *commoncrawl.DirSource
	sh   shmod.Ports
}

func newRig(t *testing.T) rig {
	t.Helper()
	ctx := context.Background()
	root := t.TempDir()
	st, err := store.Open(ctx, store.Config{
		Driver: store.DriverSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(root, "checkpoint.db")},
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close(ctx) })

	deps := modkit.Deps{Store: st, Metrics: metrics.New()}
	cm, err := cpmod.New(ctx, deps)
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	sm, err := shmod.New(deps, shmod.Options{OutDir: filepath.Join(root, "out"), Codec: "none"})
	if err != nil {
		t.Fatalf("shards: %v", err)
	}
	return rig{
		deps: deps,
		cp:   cm.Ports().(cpmod.Ports).Checkpoint,
		src:  commoncrawl.NewDirSource(filepath.Join(root, "wet")),
		sh:   sm.Ports().(shmod.Ports),
	}
}

func (r rig) run(t *testing.T, ids ...string) (domain.Summary, error) {
	t.Helper()
	m, err := New(r.deps, r.cp, r.src, r.sh.Processor)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	p := m.Ports().(Ports)
	if p.RunID == "" || m.Name() != "pipeline" {
		t.Fatalf("ports = %+v", p)
	}
	return p.Runner.Run(context.Background(), ids, p.Workers)
}

func japanese(t *testing.T) []byte {
	return testkit.WETShard(t, testkit.WETRecord{
		URI: "https://example.jp/a",
		Body: testkit.Lines(
			"ひらがなだけでかいたぶんしょうはとてもよみにくいですがこれはてすとです",
			"これもひらがなだけでかかれたにぎょうめのぶんしょうですよろしくおねがいします",
		),
	})
}

func TestRun_CorruptShardFailsThenRetries(t *testing.T) {
	t.Setenv("CORE_PIPELINE_WORKERS", "2")
	ctx := context.Background()
	r := newRig(t)
	good, bad := "seg/wet/CC-00001.warc.wet.gz", "seg/wet/CC-00002.warc.wet.gz"
	testkit.WriteFile(t, r.src.Root, good, japanese(t))
	testkit.WriteFile(t, r.src.Root, bad, []byte("definitely not gzip"))

	sum, err := r.run(t, good, bad)
	if err != nil {
		t.Fatalf("run 1: %v", err)
	}
	if sum.Done != 1 || len(sum.Failed) != 1 || sum.Languages["ja"].Documents != 1 {
		t.Fatalf("run 1 summary = %+v", sum)
	}
	if !strings.HasPrefix(sum.Failed[bad], "decompress: ") {
		t.Fatalf("failure reason = %q", sum.Failed[bad])
	}
	s, err := r.cp.Get(ctx, bad)
	if err != nil || s.State != cpdom.StateFailed || s.Reason != sum.Failed[bad] {
		t.Fatalf("checkpoint = %+v, %v", s, err)
	}

	// still broken: retried once, good shard untouched
	sum, err = r.run(t, good, bad)
	if err != nil {
		t.Fatalf("run 2: %v", err)
	}
	if sum.Skipped != 1 || len(sum.Failed) != 1 || sum.Done != 0 {
		t.Fatalf("run 2 summary = %+v", sum)
	}
	if s, _ = r.cp.Get(ctx, bad); s.Attempts != 2 {
		t.Fatalf("attempts = %d", s.Attempts)
	}
	if s, _ = r.cp.Get(ctx, good); s.Attempts != 1 || s.State != cpdom.StateDone {
		t.Fatalf("done shard was reprocessed: %+v", s)
	}

	// repaired upstream
	testkit.WriteFile(t, r.src.Root, bad, japanese(t))
	sum, err = r.run(t, good, bad)
	if err != nil || sum.Done != 1 || sum.Skipped != 1 {
		t.Fatalf("run 3 summary = %+v, %v", sum, err)
	}
	if _, err := output.ReadMarker(r.sh.Layout.LangDir(bad, "ja")); err != nil {
		t.Fatalf("marker: %v", err)
	}

	totals, err := r.cp.LangTotals(ctx)
	if err != nil || len(totals) != 1 || totals[0].Lang != "ja" || totals[0].Shards != 2 {
		t.Fatalf("totals = %+v, %v", totals, err)
	}
}
