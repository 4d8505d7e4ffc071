package natsbus

import (
	"time"

	"github.com/oscar-project/ungoliant/internal/platform/config"
)

// FromConfig reads SERVICE_NATS_*; an empty URL means events are off
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("SERVICE_NATS_")
	return Options{
		URL:            c.MayString("URL", ""),
		Prefix:         c.MayString("PREFIX", "ungoliant"),
		Name:           c.MayString("NAME", "ungoliant"),
		ConnectTimeout: c.MayDuration("CONNECT_TIMEOUT", 2*time.Second),
		ReconnectWait:  c.MayDuration("RECONNECT_WAIT", 2*time.Second),
		MaxReconnects:  c.MayInt("MAX_RECONNECTS", 60),
	}
}

// Enabled reports whether a URL is configured
func (o Options) Enabled() bool { return o.URL != "" }
