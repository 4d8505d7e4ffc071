package main

import (
	"fmt"

	"github.com/oscar-project/ungoliant/internal/core/version"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bi := version.Info()
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s, %s, %s)\n", bi.Service, bi.Version, bi.Commit, bi.Date, bi.Go)
			return nil
		},
	}
}
