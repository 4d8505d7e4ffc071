package main

import (
	"fmt"

	statussvc "github.com/oscar-project/ungoliant/internal/services/status/service"

	"github.com/spf13/cobra"
)

func newInvalidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate SHARD...",
		Short: "Reset shards to pending and delete their intermediate output",
		Long: `Resets done or failed shards to pending and removes their output sets so the
next pipeline run reprocesses them. Rebuild affected languages afterwards.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.statusService().Invalidate(cmd.Context(), statussvc.InvalidateInput{IDs: args})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "invalidated %d shard(s), removed output of %d\n",
				len(res.Invalidated), len(res.Removed))
			return nil
		},
	}
}
