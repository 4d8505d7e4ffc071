package module

import (
	"time"

	"github.com/oscar-project/ungoliant/internal/platform/config"
)

// Options holds configuration settings for the checkpoint module
type Options struct {
	StaleAfter    time.Duration
	RetryAttempts int
	RetryBase     time.Duration
	// LockTimeout bounds row lock waits on postgres; ignored for sqlite
	LockTimeout time.Duration
	// Migrate applies the schema on startup
	Migrate bool
}

// FromConfig extracts Options from the given config.Conf
func FromConfig(cfg config.Conf) Options {
	cc := cfg.Prefix("SERVICE_CHECKPOINT_")
	return Options{
		StaleAfter:    cc.MayDuration("STALE_AFTER", 0),
		RetryAttempts: cc.MayInt("RETRY_ATTEMPTS", 5),
		RetryBase:     cc.MayDuration("RETRY_BASE", 50*time.Millisecond),
		LockTimeout:   cc.MayDuration("LOCK_TIMEOUT", 5*time.Second),
		Migrate:       cc.MayBool("MIGRATE", true),
	}
}
