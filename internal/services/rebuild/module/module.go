// Package module wires the corpus assembler
package module

import (
	"github.com/oscar-project/ungoliant/internal/modkit"
	"github.com/oscar-project/ungoliant/internal/platform/codec"
	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	phttp "github.com/oscar-project/ungoliant/internal/platform/net/http"
	"github.com/oscar-project/ungoliant/internal/platform/validate"
	cpdom "github.com/oscar-project/ungoliant/internal/services/checkpoint/domain"
	"github.com/oscar-project/ungoliant/internal/services/rebuild/domain"
	"github.com/oscar-project/ungoliant/internal/services/rebuild/service"
	"github.com/oscar-project/ungoliant/internal/services/shards/output"
)

// Ports exposed by the rebuild module
type Ports struct {
	Assembler domain.AssemblerPort
}

// Module implements modkit.Module
type Module struct {
	deps  modkit.Deps
	opts  Options
	ports Ports
}

// New builds the assembler over the checkpoint. deps.Metrics, when set, is reported ahead of extra
func New(deps modkit.Deps, cp cpdom.CheckpointPort, extra ...domain.Reporter) (*Module, error) {
	opts := FromConfig(deps.Cfg)
	if err := validate.Struct(opts); err != nil {
		return nil, perr.WithOp(err, "rebuild options")
	}
	if opts.MinScore != nil && opts.MaxScore != nil && *opts.MinScore > *opts.MaxScore {
		return nil, perr.WithField(perr.Newf(perr.ErrorCodeValidation, "min_score %v is above max_score %v", *opts.MinScore, *opts.MaxScore), "min_score")
	}
	c, err := codec.Parse(opts.Codec)
	if err != nil {
		return nil, err
	}

	var rep service.Reporters
	if deps.Metrics != nil {
		rep = append(rep, service.MetricsReporter{M: deps.Metrics})
	}
	rep = append(rep, extra...)

	a := service.New(cp, output.Layout{Root: opts.SrcDir}, rep, service.Config{
		CorpusDir: opts.CorpusDir,
		Codec:     c,
		Filters: domain.Filters{
			MinScore:        opts.MinScore,
			MaxScore:        opts.MaxScore,
			DropAnnotations: opts.DropAnnotations,
			MinBytes:        opts.MinBytes,
		},
		NearDup: service.NearDup{Distance: opts.NearDupDistance, Window: opts.NearDupWindow},
	})
	return &Module{deps: deps, opts: opts, ports: Ports{Assembler: a}}, nil
}

// Options returns the effective options
func (m *Module) Options() Options { return m.opts }

// Name satisfies modkit.Module
func (m *Module) Name() string { return "rebuild" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(_ phttp.Router) {}
