package module

import (
	"runtime"
	"time"

	"github.com/oscar-project/ungoliant/internal/platform/config"
)

// Options holds configuration settings for the pipeline module
type Options struct {
	Workers        int           `json:"workers" validate:"min=1"`
	InFlightBudget int64         `json:"budget" validate:"min=0"`
	OpenTimeout    time.Duration `json:"open_timeout" validate:"min=0"`
	// RunID is generated when empty
	RunID string `json:"run_id"`
}

// FromConfig reads CORE_PIPELINE_*
func FromConfig(cfg config.Conf) Options {
	p := cfg.Prefix("CORE_PIPELINE_")
	return Options{
		Workers:        p.MayInt("WORKERS", runtime.NumCPU()),
		InFlightBudget: p.MayBytes("BUDGET", 4_000_000_000),
		OpenTimeout:    p.MayDuration("OPEN_TIMEOUT", 30*time.Minute),
		RunID:          p.MayString("RUN_ID", ""),
	}
}
