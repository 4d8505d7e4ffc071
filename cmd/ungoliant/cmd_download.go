package main

import (
	"fmt"
	"sort"

	"github.com/oscar-project/ungoliant/internal/adapters/ingest/commoncrawl"
	"github.com/oscar-project/ungoliant/internal/platform/config"

	"github.com/spf13/cobra"
)

func newDownloadCmd() *cobra.Command {
	var (
		workers int
		offset  int
	)
	cmd := &cobra.Command{
		Use:   "download --paths FILE",
		Short: "Prefetch the shards of a wet.paths listing into the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bindEnv(cmd, []flagEnv{
				{"paths", "CORE_SOURCE_PATHS"},
				{"cache", "CORE_SOURCE_CACHE_DIR"},
				{"base-url", "CORE_SOURCE_BASE_URL"},
			})
			src, err := commoncrawl.NewHTTP(commoncrawl.FromConfig(config.New()), nil)
			if err != nil {
				return err
			}
			ids, err := src.List(cmd.Context())
			if err != nil {
				return err
			}
			if offset > 0 {
				ids = ids[min(offset, len(ids)):]
			}

			sum, err := src.Download(cmd.Context(), ids, workers)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, sum)
			failed := make([]string, 0, len(sum.Failed))
			for id := range sum.Failed {
				failed = append(failed, id)
			}
			sort.Strings(failed)
			for _, id := range failed {
				fmt.Fprintf(out, "  failed %s: %s\n", id, sum.Failed[id])
			}
			if err != nil {
				return err
			}
			if len(failed) > 0 {
				return exitError{code: 2, msg: fmt.Sprintf("%d download(s) failed", len(failed))}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.String("paths", "", "wet.paths(.gz) listing")
	f.String("cache", "", "destination directory (CORE_SOURCE_CACHE_DIR)")
	f.String("base-url", "", "Common Crawl base URL")
	f.IntVarP(&workers, "workers", "t", 4, "concurrent downloads")
	f.IntVarP(&offset, "offset", "o", 0, "skip this many listed shards")
	return cmd
}
