package main

import (
	"fmt"
	"io"

	"github.com/oscar-project/ungoliant/internal/modkit/module"
	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	rbdom "github.com/oscar-project/ungoliant/internal/services/rebuild/domain"
	rbmod "github.com/oscar-project/ungoliant/internal/services/rebuild/module"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var rebuildEnv = []flagEnv{
	{"corpus", "CORE_REBUILD_CORPUS_DIR"},
	{"codec", "CORE_REBUILD_CODEC"},
	{"min-score", "CORE_REBUILD_MIN_SCORE"},
	{"max-score", "CORE_REBUILD_MAX_SCORE"},
	{"drop-annotations", "CORE_REBUILD_DROP_ANNOTATIONS"},
	{"min-bytes", "CORE_REBUILD_MIN_BYTES"},
	{"near-dup-window", "CORE_REBUILD_NEAR_DUP_WINDOW"},
	{"near-dup-distance", "CORE_REBUILD_NEAR_DUP_DISTANCE"},
}

func newRebuildCmd() *cobra.Command {
	var (
		lang string
		all  bool
	)
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Assemble the deduplicated corpus of a language from done shards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (lang == "") == !all {
				return perr.InvalidArgf("exactly one of --lang or --all is required")
			}
			bindEnv(cmd, rebuildEnv)
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			rm, err := rbmod.New(a.deps, a.cp, a.reporters()...)
			if err != nil {
				return err
			}
			asm := module.MustPortsOf[rbmod.Ports](rm).Assembler
			if all {
				ms, err := asm.RebuildAll(cmd.Context())
				for _, m := range ms {
					printManifest(cmd.OutOrStdout(), m)
				}
				return err
			}
			m, err := asm.Rebuild(cmd.Context(), lang)
			if err != nil {
				return err
			}
			printManifest(cmd.OutOrStdout(), m)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&lang, "lang", "l", "", "language tag to assemble")
	f.BoolVar(&all, "all", false, "assemble every language with done shards")
	f.String("corpus", "", "final corpus root (CORE_REBUILD_CORPUS_DIR)")
	f.String("codec", "", "corpus compression: gzip | zstd | none")
	f.String("min-score", "", "drop documents scored below this")
	f.String("max-score", "", "drop documents scored above this")
	f.String("drop-annotations", "", "comma separated annotations to drop, e.g. noisy,tiny")
	f.String("min-bytes", "", "drop documents shorter than this many bytes")
	f.Int("near-dup-window", 0, "count near duplicates against this many recent documents; 0 disables")
	f.Int("near-dup-distance", 0, "largest TLSH distance counted as a near duplicate (default 30)")
	return cmd
}

func printManifest(w io.Writer, m rbdom.Manifest) {
	fmt.Fprintf(w, "%s: %s docs (%s), %s duplicates, %s filtered, %d shards -> %s\n",
		m.Lang, humanize.Comma(m.Documents), humanize.IBytes(uint64(m.TextBytes)),
		humanize.Comma(m.Duplicates), humanize.Comma(m.FilteredTotal()), m.Shards, m.File)
	if m.NearDups > 0 {
		fmt.Fprintf(w, "  %s near duplicates kept\n", humanize.Comma(m.NearDups))
	}
	fmt.Fprintf(w, "  %s\n", m.Digest)
}
