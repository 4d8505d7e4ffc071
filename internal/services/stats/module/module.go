// Package module wires the ClickHouse statistics sink; it is inert when ClickHouse is off
package module

import (
	"context"
	"time"

	"github.com/oscar-project/ungoliant/internal/modkit"
	"github.com/oscar-project/ungoliant/internal/platform/config"
	phttp "github.com/oscar-project/ungoliant/internal/platform/net/http"
	"github.com/oscar-project/ungoliant/internal/services/stats/domain"
	"github.com/oscar-project/ungoliant/internal/services/stats/repo"
	"github.com/oscar-project/ungoliant/internal/services/stats/service"
)

// Options holds configuration settings for the stats module
type Options struct {
	Migrate       bool
	InsertTimeout time.Duration
}

// FromConfig reads SERVICE_CLICKHOUSE_*
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("SERVICE_CLICKHOUSE_")
	return Options{
		Migrate:       c.MayBool("MIGRATE", true),
		InsertTimeout: c.MayDuration("INSERT_TIMEOUT", 5*time.Second),
	}
}

// Ports exposed by the stats module; both are nil when ClickHouse is disabled
type Ports struct {
	Sink   *service.Sink
	Reader domain.ReaderPort
}

// Module implements modkit.Module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New builds the sink over deps.CH()
func New(ctx context.Context, deps modkit.Deps) (*Module, error) {
	m := &Module{deps: deps}
	ch := deps.CH()
	if ch == nil {
		return m, nil
	}
	opts := FromConfig(deps.Cfg)
	r := repo.New(ch)
	if opts.Migrate {
		if err := r.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	m.ports = Ports{Sink: service.New(r, opts.InsertTimeout), Reader: service.Reader{R: r}}
	return m, nil
}

// Enabled reports whether ClickHouse is wired
func (m *Module) Enabled() bool { return m.ports.Sink != nil }

// Sink is the pipeline observer and rebuild reporter, nil when disabled
func (m *Module) Sink() *service.Sink { return m.ports.Sink }

// Reader serves run and corpus history, nil when disabled
func (m *Module) Reader() domain.ReaderPort { return m.ports.Reader }

// Name satisfies modkit.Module
func (m *Module) Name() string { return "stats" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(_ phttp.Router) {}
