// Package module wires the line classifier, the quality filter and the shard processor
package module

import (
	"github.com/oscar-project/ungoliant/internal/core/lid"
	"github.com/oscar-project/ungoliant/internal/core/multilingual"
	"github.com/oscar-project/ungoliant/internal/core/quality"
	"github.com/oscar-project/ungoliant/internal/modkit"
	"github.com/oscar-project/ungoliant/internal/platform/codec"
	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/platform/logger"
	phttp "github.com/oscar-project/ungoliant/internal/platform/net/http"
	"github.com/oscar-project/ungoliant/internal/platform/validate"
	"github.com/oscar-project/ungoliant/internal/services/shards/domain"
	"github.com/oscar-project/ungoliant/internal/services/shards/output"
	"github.com/oscar-project/ungoliant/internal/services/shards/service"
)

// Ports exposed by the shards module
type Ports struct {
	Processor domain.ProcessorPort
	Layout    output.Layout
}

// Module implements modkit.Module
type Module struct {
	deps  modkit.Deps
	opts  Options
	ports Ports
}

// New loads the models and the blocklist and builds the processor.
// Any load failure is returned; callers treat it as fatal
func New(deps modkit.Deps, overrides Options) (*Module, error) {
	cfg := merge(FromConfig(deps.Cfg), overrides)
	if err := validate.Struct(cfg); err != nil {
		return nil, perr.WithOp(err, "shards options")
	}
	log := logger.Named("shards")

	oracle, err := buildOracle(cfg)
	if err != nil {
		return nil, err
	}
	classifier := lid.New(oracle, lid.Options{MinChars: cfg.LIDMinChars, Threshold: cfg.LIDThreshold})

	var bl *quality.Blocklist
	if cfg.BlocklistRoot != "" {
		if bl, err = quality.LoadBlocklist(cfg.BlocklistRoot, cfg.Categories); err != nil {
			return nil, err
		}
		log.Info().Str("root", cfg.BlocklistRoot).Strs("categories", bl.Categories()).Int("domains", bl.Len()).
			Msg("blocklist loaded")
	}

	var qm *quality.QualityModels
	if cfg.QualityManifest != "" {
		if qm, err = quality.LoadQualityModels(cfg.QualityManifest, cfg.QualityCache); err != nil {
			return nil, err
		}
		log.Info().Str("manifest", cfg.QualityManifest).Strs("langs", qm.Languages()).Msg("quality models registered")
	}

	fopt := quality.DefaultOptions()
	fopt.Annotate = cfg.Annotate
	fopt.DropNoisyTiny = cfg.DropNoisyTiny
	filter := quality.New(bl, qm, fopt)

	c, err := codec.Parse(cfg.Codec)
	if err != nil {
		return nil, err
	}
	mode, err := multilingual.ParseMode(cfg.MultiMode)
	if err != nil {
		return nil, err
	}
	multi := multilingual.DefaultOptions()
	multi.Mode, multi.MinLines, multi.MaxLangs, multi.Ratio = mode, cfg.MultiMinLines, cfg.MultiMaxLangs, cfg.MultiRatio
	proc := service.New(classifier, filter, service.Config{
		OutDir:       cfg.OutDir,
		MinLineChars: cfg.MinLineChars,
		Absorb:       service.Absorb{MaxLines: cfg.AbsorbMaxLines, MaxChars: cfg.AbsorbMaxChars},
		Output:       output.Options{Codec: c, SplitBytes: cfg.SplitBytes, SplitDocs: cfg.SplitDocs},
		KeepHeaders:  cfg.KeepHeaders,
		Multi:        multi,
		LSH:          cfg.LSH,
	})
	if mode != multilingual.ModeOff {
		log.Info().Str("mode", string(mode)).Int("max_langs", multi.MaxLangs).Float64("ratio", multi.Ratio).
			Msg("multilingual records kept whole")
	}

	return &Module{
		deps:  deps,
		opts:  cfg,
		ports: Ports{Processor: proc, Layout: proc.Layout()},
	}, nil
}

func buildOracle(cfg Options) (lid.Oracle, error) {
	if cfg.LIDModelPath == "" {
		logger.Named("shards").Warn().Msg("no identification model configured; falling back to script detection")
		return lid.ScriptOracle{}, nil
	}
	m, err := lid.LoadNGram(cfg.LIDModelPath)
	if err != nil {
		return nil, err
	}
	logger.Named("shards").Info().Str("path", cfg.LIDModelPath).Strs("langs", m.Languages()).Msg("identification model loaded")
	if cfg.LIDScriptFirst {
		return lid.Chain{lid.ScriptOracle{}, m}, nil
	}
	return m, nil
}

// merge lets non-zero overrides win over config; bools are taken from config only
func merge(cfg, o Options) Options {
	if o.LIDModelPath != "" {
		cfg.LIDModelPath = o.LIDModelPath
	}
	if o.LIDMinChars != 0 {
		cfg.LIDMinChars = o.LIDMinChars
	}
	if o.LIDThreshold != 0 {
		cfg.LIDThreshold = o.LIDThreshold
	}
	if o.BlocklistRoot != "" {
		cfg.BlocklistRoot = o.BlocklistRoot
	}
	if len(o.Categories) > 0 {
		cfg.Categories = o.Categories
	}
	if o.QualityManifest != "" {
		cfg.QualityManifest = o.QualityManifest
	}
	if o.QualityCache != 0 {
		cfg.QualityCache = o.QualityCache
	}
	if o.OutDir != "" {
		cfg.OutDir = o.OutDir
	}
	if o.MinLineChars != 0 {
		cfg.MinLineChars = o.MinLineChars
	}
	if o.AbsorbMaxLines != 0 {
		cfg.AbsorbMaxLines = o.AbsorbMaxLines
	}
	if o.AbsorbMaxChars != 0 {
		cfg.AbsorbMaxChars = o.AbsorbMaxChars
	}
	if o.SplitBytes != 0 {
		cfg.SplitBytes = o.SplitBytes
	}
	if o.SplitDocs != 0 {
		cfg.SplitDocs = o.SplitDocs
	}
	if o.Codec != "" {
		cfg.Codec = o.Codec
	}
	if o.MultiMode != "" {
		cfg.MultiMode = o.MultiMode
	}
	if o.MultiMaxLangs != 0 {
		cfg.MultiMaxLangs = o.MultiMaxLangs
	}
	if o.MultiRatio != 0 {
		cfg.MultiRatio = o.MultiRatio
	}
	return cfg
}

// Options returns the effective options after config and overrides
func (m *Module) Options() Options { return m.opts }

// Name satisfies modkit.Module
func (m *Module) Name() string { return "shards" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(_ phttp.Router) {}
