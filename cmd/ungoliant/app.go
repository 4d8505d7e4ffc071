package main

import (
	"context"
	"os"

	"github.com/oscar-project/ungoliant/internal/adapters/events/natsbus"
	"github.com/oscar-project/ungoliant/internal/modkit"
	"github.com/oscar-project/ungoliant/internal/modkit/module"
	"github.com/oscar-project/ungoliant/internal/modkit/repokit"
	"github.com/oscar-project/ungoliant/internal/platform/config"
	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/platform/logger"
	"github.com/oscar-project/ungoliant/internal/platform/metrics"
	"github.com/oscar-project/ungoliant/internal/platform/net/middleware"
	"github.com/oscar-project/ungoliant/internal/platform/store"
	cpdom "github.com/oscar-project/ungoliant/internal/services/checkpoint/domain"
	cpmod "github.com/oscar-project/ungoliant/internal/services/checkpoint/module"
	pldom "github.com/oscar-project/ungoliant/internal/services/pipeline/domain"
	plsvc "github.com/oscar-project/ungoliant/internal/services/pipeline/service"
	rbdom "github.com/oscar-project/ungoliant/internal/services/rebuild/domain"
	rbsvc "github.com/oscar-project/ungoliant/internal/services/rebuild/service"
	"github.com/oscar-project/ungoliant/internal/services/shards/output"
	statsmod "github.com/oscar-project/ungoliant/internal/services/stats/module"
	statusmod "github.com/oscar-project/ungoliant/internal/services/status/module"
	statussvc "github.com/oscar-project/ungoliant/internal/services/status/service"
)

// app holds what every command shares: config, stores, metrics and the optional event bus
type app struct {
	cfg     config.Conf
	log     *logger.Logger
	st      *store.Store
	metrics *metrics.Pipeline
	bus     *natsbus.Bus
	deps    modkit.Deps
	cp      cpdom.CheckpointPort
	stats   *statsmod.Module
	layout  output.Layout
}

// openApp opens the checkpoint, the optional ClickHouse sink and the optional NATS bus
func openApp(ctx context.Context) (*app, error) {
	cfg := config.New()
	l := logger.Get()
	outDir := cfg.Prefix("CORE_SHARDS_").MayString("OUT_DIR", "./out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeIO, "create output root %s", outDir)
	}

	sc := store.FromConfig(cfg, outDir)
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, sc, store.WithLogger(*l))
	if err != nil {
		return nil, perr.WithOp(err, "store.Open")
	}
	if err := repokit.Guard(ctx, "store", st); err != nil {
		_ = st.Close(ctx)
		return nil, err
	}

	a := &app{cfg: cfg, log: l, st: st, metrics: metrics.New(), layout: output.Layout{Root: outDir}}
	a.deps = modkit.Deps{Log: *l, Cfg: cfg, Store: st, Metrics: a.metrics}

	cm, err := cpmod.New(ctx, a.deps)
	if err != nil {
		a.close()
		return nil, err
	}
	a.cp = module.MustPortsOf[cpdom.CheckpointPort](cm)

	if a.stats, err = statsmod.New(ctx, a.deps); err != nil {
		a.close()
		return nil, err
	}

	if no := natsbus.FromConfig(cfg); no.Enabled() {
		if a.bus, err = natsbus.Connect(no); err != nil {
			a.close()
			return nil, err
		}
	}

	l.Info().Str("driver", string(sc.Driver)).Bool("clickhouse", a.stats.Enabled()).
		Bool("nats", a.bus != nil).Str("out", outDir).Msg("ungoliant ready")
	return a, nil
}

// observers are the optional pipeline observers; metrics are added by the pipeline module
func (a *app) observers() []pldom.Observer {
	var out []pldom.Observer
	if a.stats.Enabled() {
		out = append(out, a.stats.Sink())
	}
	if a.bus != nil {
		out = append(out, plsvc.EventObserver{Pub: a.bus})
	}
	return out
}

// reporters are the optional rebuild reporters
func (a *app) reporters() []rbdom.Reporter {
	var out []rbdom.Reporter
	if a.stats.Enabled() {
		out = append(out, a.stats.Sink())
	}
	if a.bus != nil {
		out = append(out, rbsvc.EventReporter{Pub: a.bus})
	}
	return out
}

// status builds the status module over the shared checkpoint
func (a *app) status() *statusmod.Module {
	opts := statusmod.FromConfig(a.cfg)
	return statusmod.New(a.deps, statusmod.Wiring{
		Checkpoint: a.cp,
		Layout:     a.layout,
		History:    a.stats.Reader(),
	},
		modkit.WithPrefix(opts.Prefix),
		modkit.WithMiddlewares(middleware.Defaults(middleware.CORSOptions{AllowedOrigins: opts.CORSOrigins})...),
	)
}

func (a *app) statusService() *statussvc.Service {
	return module.MustPortsOf[*statussvc.Service](a.status())
}

func (a *app) close() {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.log.Warn().Err(err).Msg("nats close")
		}
	}
	if err := a.st.Close(context.Background()); err != nil {
		a.log.Error().Err(err).Msg("failed to close store")
	}
}
