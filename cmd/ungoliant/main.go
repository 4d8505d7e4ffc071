// Command ungoliant turns Common Crawl WET shards into per-language corpora
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/platform/logger"

	"github.com/spf13/cobra"
)

// exitError carries a process exit code out of a command
type exitError struct {
	code int
	msg  string
}

func (e exitError) Error() string { return e.msg }

// persistent flags shared by every command that opens the checkpoint
var rootEnv = []flagEnv{
	{"dst", "CORE_SHARDS_OUT_DIR"},
	{"checkpoint", "SERVICE_SQLITE_PATH"},
	{"checkpoint-driver", "SERVICE_CHECKPOINT_DRIVER"},
	{"log-level", "LOG_LEVEL"},
	{"log-format", "LOG_FORMAT"},
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ungoliant",
		Short:         "Common Crawl WET shards to deduplicated per-language corpora",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			bindEnv(cmd, rootEnv)
			logger.Init(logger.FromEnv())
			return nil
		},
	}
	pf := root.PersistentFlags()
	pf.String("dst", "", "intermediate output root; the sqlite checkpoint lives here too (CORE_SHARDS_OUT_DIR)")
	pf.String("checkpoint", "", "sqlite checkpoint path (SERVICE_SQLITE_PATH)")
	pf.String("checkpoint-driver", "", "checkpoint backend: sqlite | pg (SERVICE_CHECKPOINT_DRIVER)")
	pf.String("log-level", "", "trace | debug | info | warn | error (LOG_LEVEL)")
	pf.String("log-format", "", "console | json (LOG_FORMAT)")

	root.AddCommand(
		newPipelineCmd(),
		newRebuildCmd(),
		newStatusCmd(),
		newInvalidateCmd(),
		newDownloadCmd(),
		newServeCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	ctx, stop := signalContext(context.Background())
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee exitError
	if errors.As(err, &ee) {
		fmt.Fprintln(os.Stderr, ee.msg)
		return ee.code
	}
	fmt.Fprintln(os.Stderr, "ungoliant:", err)
	if perr.IsCode(err, perr.ErrorCodeCanceled) {
		return 130
	}
	return 1
}
