package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/oscar-project/ungoliant/internal/adapters/ingest/commoncrawl"
	"github.com/oscar-project/ungoliant/internal/modkit/module"
	pldom "github.com/oscar-project/ungoliant/internal/services/pipeline/domain"
	plmod "github.com/oscar-project/ungoliant/internal/services/pipeline/module"
	shmod "github.com/oscar-project/ungoliant/internal/services/shards/module"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var pipelineEnv = []flagEnv{
	{"source", "CORE_SOURCE_KIND"},
	{"src", "CORE_SOURCE_DIR"},
	{"paths", "CORE_SOURCE_PATHS"},
	{"base-url", "CORE_SOURCE_BASE_URL"},
	{"cache", "CORE_SOURCE_CACHE_DIR"},
	{"workers", "CORE_PIPELINE_WORKERS"},
	{"budget", "CORE_PIPELINE_BUDGET"},
	{"run-id", "CORE_PIPELINE_RUN_ID"},
	{"split-size", "CORE_SHARDS_SPLIT_SIZE"},
	{"codec", "CORE_SHARDS_CODEC"},
	{"lid-path", "CORE_LID_MODEL_PATH"},
	{"blocklist", "CORE_FILTER_BLOCKLIST"},
	{"categories", "CORE_FILTER_CATEGORIES"},
	{"quality-models", "CORE_FILTER_QUALITY_MODELS"},
	{"multi", "CORE_SHARDS_MULTI_MODE"},
	{"multi-ratio", "CORE_SHARDS_MULTI_RATIO"},
	{"multi-max-langs", "CORE_SHARDS_MULTI_MAX_LANGS"},
	{"http-addr", "SERVICE_HTTP_ADDR"},
}

func newPipelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Process every shard not yet done into per-language output sets",
		Long: `Lists the shards of the source, seeds them into the checkpoint and processes
every shard that is not done yet. Failed shards are retried on the next invocation.

The first SIGINT lets in-flight shards finish; a second one aborts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bindEnv(cmd, pipelineEnv)
			return runPipeline(cmd.Context(), cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.String("source", "", "shard source: dir | http")
	f.String("src", "", "directory holding *.warc.wet.gz shards (dir source)")
	f.String("paths", "", "wet.paths(.gz) listing; restricts dir sources, required for http")
	f.String("base-url", "", "Common Crawl base URL (http source)")
	f.String("cache", "", "download cache directory (http source)")
	f.Int("workers", 0, "concurrent shards (default: CPU count)")
	f.String("budget", "", "in-flight compressed bytes, e.g. 4GB")
	f.String("run-id", "", "run id recorded on claimed shards (default: random)")
	f.StringP("split-size", "s", "", "part size threshold, e.g. 500MB; 0 disables splitting")
	f.String("codec", "", "part compression: gzip | zstd | none")
	f.String("lid-path", "", "language identification model")
	f.String("blocklist", "", "UT1 blocklist root")
	f.String("categories", "", "comma separated blocklist categories, e.g. adult,phishing")
	f.String("quality-models", "", "quality model manifest (yaml)")
	f.String("multi", "", "keep mixed-language records whole: off | ratio | strict")
	f.Float64("multi-ratio", 0, "ratio mode: allowed drop between consecutive languages (default 4)")
	f.Int("multi-max-langs", 0, "most languages a multilingual record may hold (default 5)")
	f.String("http-addr", "", "serve status and /metrics on this address while running")
	return cmd
}

func runPipeline(ctx context.Context, out io.Writer) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	sm, err := shmod.New(a.deps, shmod.Options{OutDir: a.layout.Root})
	if err != nil {
		return err
	}
	src, err := commoncrawl.NewSource(commoncrawl.FromConfig(a.cfg), a.metrics)
	if err != nil {
		return err
	}
	pm, err := plmod.New(a.deps, a.cp, src, module.MustPortsOf[shmod.Ports](sm).Processor, a.observers()...)
	if err != nil {
		return err
	}
	ports := module.MustPortsOf[plmod.Ports](pm)

	ids, err := src.List(ctx)
	if err != nil {
		return err
	}

	// the status server lives exactly as long as the run
	sctx, stopServer := context.WithCancel(context.WithoutCancel(ctx))
	g, _ := errgroup.WithContext(sctx)
	g.Go(func() error { return serveStatus(sctx, a) })

	sum, runErr := ports.Runner.Run(ctx, ids, ports.Workers)
	stopServer()
	if err := g.Wait(); err != nil {
		a.log.Warn().Err(err).Msg("status server")
	}

	printSummary(out, sum)
	if runErr != nil {
		return runErr
	}
	if len(sum.Failed) > 0 {
		return exitError{code: 2, msg: fmt.Sprintf("%d shard(s) failed; rerun to retry them", len(sum.Failed))}
	}
	return nil
}

func printSummary(w io.Writer, s pldom.Summary) {
	fmt.Fprintf(w, "run %s: %d shards, %d done, %d failed, %d skipped, %d lost, %d pending in %s\n",
		s.RunID, s.Shards, s.Done, len(s.Failed), s.Skipped, s.Lost, s.Pending, s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "records %s, malformed %s, documents %s\n",
		humanize.Comma(s.Records), humanize.Comma(s.Malformed), humanize.Comma(s.Documents()))
	for _, lang := range s.Langs() {
		t := s.Languages[lang]
		fmt.Fprintf(w, "  %-8s %12s docs %10s %10s rejected\n", lang, humanize.Comma(t.Documents),
			humanize.IBytes(uint64(t.Bytes)), humanize.Comma(t.Rejected))
	}
	if len(s.Rejected) > 0 {
		reasons := make([]string, 0, len(s.Rejected))
		for r := range s.Rejected {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			fmt.Fprintf(w, "  rejected %-12s %s\n", r, humanize.Comma(s.Rejected[r]))
		}
	}
	ids := make([]string, 0, len(s.Failed))
	for id := range s.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "  failed %s: %s\n", id, s.Failed[id])
	}
}
