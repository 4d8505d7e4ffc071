// Package module wires the status surface: checkpoint views, history, metrics and probes
package module

import (
	"net/http"
	"strings"
	"time"

	"github.com/oscar-project/ungoliant/internal/modkit"
	"github.com/oscar-project/ungoliant/internal/platform/config"
	phttp "github.com/oscar-project/ungoliant/internal/platform/net/http"
	cpdom "github.com/oscar-project/ungoliant/internal/services/checkpoint/domain"
	"github.com/oscar-project/ungoliant/internal/services/shards/output"
	stdom "github.com/oscar-project/ungoliant/internal/services/stats/domain"
	statushttp "github.com/oscar-project/ungoliant/internal/services/status/http"
	"github.com/oscar-project/ungoliant/internal/services/status/service"
)

// Options holds the HTTP settings of the status surface
type Options struct {
	// Addr is empty when the surface is off
	Addr string
	// Prefix mounts every route below a path, for reverse proxies
	Prefix      string
	Profiler    bool
	CORSOrigins []string
}

// FromConfig reads SERVICE_HTTP_*
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("SERVICE_HTTP_")
	return Options{
		Addr:        c.MayString("ADDR", ""),
		Prefix:      normPrefix(c.MayString("PREFIX", "")),
		Profiler:    c.MayBool("PROFILER", false),
		CORSOrigins: c.MayCSV("CORS_ORIGINS", nil),
	}
}

func normPrefix(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// Wiring names the ports the status surface reads
type Wiring struct {
	Checkpoint cpdom.CheckpointPort
	Layout     output.Layout
	History    stdom.ReaderPort
}

// Ports exposed by the status module
type Ports struct {
	Status *service.Service
}

// Module implements modkit.Module
type Module struct {
	deps   modkit.Deps
	opts   Options
	name   string
	prefix string
	mws    []func(http.Handler) http.Handler
	ports  Ports

	register  func(phttp.Router)
	startedAt time.Time
}

// New builds the status service; routes mount at the server root unless WithPrefix is given
func New(deps modkit.Deps, w Wiring, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("status")}, opts...)...)
	m := &Module{
		deps:      deps,
		opts:      FromConfig(deps.Cfg),
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		ports:     Ports{Status: service.New(w.Checkpoint, w.Layout, w.History)},
		startedAt: time.Now(),
	}

	m.register = func(r phttp.Router) {
		d := statushttp.Deps{Svc: m.ports.Status, StartedAt: m.startedAt}
		if deps.Store != nil {
			d.Store = deps.Store
		}
		if deps.Metrics != nil {
			d.Metrics = deps.Metrics.Handler()
		}
		statushttp.Register(r, d)
		phttp.MountProfiler(r, "/debug", m.opts.Profiler)
	}
	return m
}

// Options returns the resolved HTTP settings
func (m *Module) Options() Options { return m.opts }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(r phttp.Router) { m.register(r) }

// Prefix is where the caller should mount this module
func (m *Module) Prefix() string { return m.prefix }

// Middlewares are the per module middlewares given via WithMiddlewares
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return m.mws }

// Name satisfies modkit.Module
func (m *Module) Name() string {
	if m.name == "" {
		return "status"
	}
	return m.name
}

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }
