// Package module wires the orchestrator over the checkpoint, a shard source and the processor
package module

import (
	"github.com/oscar-project/ungoliant/internal/modkit"
	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	phttp "github.com/oscar-project/ungoliant/internal/platform/net/http"
	"github.com/oscar-project/ungoliant/internal/platform/validate"
	cpdom "github.com/oscar-project/ungoliant/internal/services/checkpoint/domain"
	"github.com/oscar-project/ungoliant/internal/services/pipeline/domain"
	"github.com/oscar-project/ungoliant/internal/services/pipeline/service"
	shdom "github.com/oscar-project/ungoliant/internal/services/shards/domain"

	"github.com/google/uuid"
)

// Ports exposed by the pipeline module
type Ports struct {
	Runner  domain.RunnerPort
	Workers int
	RunID   string
}

// Module implements modkit.Module
type Module struct {
	deps  modkit.Deps
	opts  Options
	ports Ports
}

// New builds the runner. deps.Metrics, when set, is observed ahead of extra
func New(deps modkit.Deps, cp cpdom.CheckpointPort, src domain.Source, proc shdom.ProcessorPort, extra ...domain.Observer) (*Module, error) {
	opts := FromConfig(deps.Cfg)
	if err := validate.Struct(opts); err != nil {
		return nil, perr.WithOp(err, "pipeline options")
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}

	var obs service.Observers
	if deps.Metrics != nil {
		obs = append(obs, service.MetricsObserver{M: deps.Metrics})
	}
	obs = append(obs, extra...)

	r := service.New(cp, src, proc, obs, service.Config{
		RunID:          opts.RunID,
		InFlightBudget: opts.InFlightBudget,
		OpenTimeout:    opts.OpenTimeout,
	})
	return &Module{
		deps:  deps,
		opts:  opts,
		ports: Ports{Runner: r, Workers: opts.Workers, RunID: opts.RunID},
	}, nil
}

// Options returns the effective options
func (m *Module) Options() Options { return m.opts }

// Name satisfies modkit.Module
func (m *Module) Name() string { return "pipeline" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(_ phttp.Router) {}
