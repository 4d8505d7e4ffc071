package main

import (
	"context"

	"github.com/oscar-project/ungoliant/internal/modkit"
	phttp "github.com/oscar-project/ungoliant/internal/platform/net/http"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve checkpoint status, history and /metrics until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bindEnv(cmd, []flagEnv{{"http-addr", "SERVICE_HTTP_ADDR"}})
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			if a.status().Options().Addr == "" {
				mustSetEnv("SERVICE_HTTP_ADDR", ":9464")
			}
			return serveStatus(cmd.Context(), a)
		},
	}
	cmd.Flags().String("http-addr", "", "listen address, default :9464 (SERVICE_HTTP_ADDR)")
	return cmd
}

// serveStatus runs the status server until ctx ends; a blank SERVICE_HTTP_ADDR disables it
func serveStatus(ctx context.Context, a *app) error {
	sm := a.status()
	opts := sm.Options()
	if opts.Addr == "" {
		return nil
	}
	srv := phttp.NewServer(opts.Addr)
	modkit.Mount(srv.Router(), sm, sm.Prefix(), sm.Middlewares()...)
	return srv.Run(ctx)
}
