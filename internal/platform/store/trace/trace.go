// Package trace carries SQL query events from the store adapters to the logger
package trace

import (
	"context"
	"strings"

	"github.com/oscar-project/ungoliant/internal/platform/logger"

	"github.com/rs/zerolog"
)

// Event describes one statement round trip
type Event struct {
	SQL       string
	Args      any
	ElapsedUS int64
	Err       error
	Slow      bool
}

// Tracer receives query events
type Tracer interface {
	OnQuery(ctx context.Context, ev Event)
}

// Log returns a tracer that prints every statement regardless of the root level.
// component tags the lines ("pg", "sqlite")
func Log(root logger.Logger, component string) Tracer {
	ll := root.Level(zerolog.DebugLevel).With().Str("component", component).Logger()
	return &zlTracer{log: ll}
}

type zlTracer struct{ log logger.Logger }

func (z *zlTracer) OnQuery(ctx context.Context, ev Event) {
	evt := z.log.Info()
	if ev.Slow {
		evt = z.log.Warn()
	}
	if id := logger.RunID(ctx); id != "" {
		evt = evt.Str("run_id", id)
	}
	evt.Float64("elapsed_ms", float64(ev.ElapsedUS)/1000.0).
		Bool("slow", ev.Slow).
		Str("sql", Compact(ev.SQL)).
		Interface("args", ev.Args).
		Err(ev.Err).
		Msg("sql query")
}

// Compact folds runs of whitespace into one space
func Compact(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch r {
		case '\n', '\t', '\r', ' ':
			if !space {
				b.WriteByte(' ')
				space = true
			}
			continue
		}
		space = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// Slow reports whether elapsedUS crosses slowMs; negative slowMs disables
func Slow(elapsedUS int64, slowMs int) bool {
	return slowMs >= 0 && elapsedUS >= int64(slowMs)*1000
}
