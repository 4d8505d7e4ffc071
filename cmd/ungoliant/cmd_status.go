package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	cpdom "github.com/oscar-project/ungoliant/internal/services/checkpoint/domain"
	statussvc "github.com/oscar-project/ungoliant/internal/services/status/service"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var (
		state string
		langs bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show checkpoint counts, shards in a state, or language totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			svc := a.statusService()
			out := cmd.OutOrStdout()

			if langs {
				totals, err := svc.Languages(cmd.Context())
				if err != nil {
					return err
				}
				printLanguages(out, totals)
				return nil
			}
			list, err := svc.Shards(cmd.Context(), state)
			if err != nil {
				return err
			}
			printShards(out, list, state != "")
			return nil
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "list shards in this state: pending | in_progress | done | failed")
	cmd.Flags().BoolVar(&langs, "languages", false, "show per-language totals over done shards")
	return cmd
}

func printShards(w io.Writer, l statussvc.ShardList, rows bool) {
	parts := make([]string, 0, len(cpdom.States))
	for _, st := range cpdom.States {
		parts = append(parts, fmt.Sprintf("%s=%d", st, l.Counts[st]))
	}
	fmt.Fprintln(w, strings.Join(parts, " "))
	if n := len(l.Staging); n > 0 {
		fmt.Fprintf(w, "%d unpublished shard dir(s) under the output root\n", n)
	}
	if !rows {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SHARD\tSTATE\tATTEMPTS\tDOCS\tUPDATED\tREASON")
	for _, s := range l.Shards {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n", s.ID, s.State, s.Attempts,
			humanize.Comma(s.Documents), humanize.RelTime(s.UpdatedAt, time.Now(), "ago", "from now"), s.Reason)
	}
	_ = tw.Flush()
}

func printLanguages(w io.Writer, totals []cpdom.LangTotal) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LANG\tSHARDS\tDOCS\tBYTES")
	for _, t := range totals {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", t.Lang, t.Shards, humanize.Comma(t.Documents), humanize.IBytes(uint64(t.Bytes)))
	}
	_ = tw.Flush()
}
