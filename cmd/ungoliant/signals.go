package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/oscar-project/ungoliant/internal/platform/logger"
)

// signalContext cancels on the first SIGINT/SIGTERM so in-flight shards can finish
// and exits immediately on the second
func signalContext(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 2)
	done := make(chan struct{})
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case s := <-ch:
			logger.Get().Warn().Str("signal", s.String()).
				Msg("finishing in-flight shards; signal again to abort")
			cancel()
		case <-done:
			return
		}
		select {
		case <-ch:
			logger.Get().Error().Msg("second signal, aborting; in-progress shards are recovered on the next run")
			os.Exit(130)
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(ch)
		close(done)
		cancel()
	}
}
