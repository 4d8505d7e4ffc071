package commoncrawl

import (
	"net/http"
	"time"

	"github.com/oscar-project/ungoliant/internal/platform/config"
	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/platform/logger"
)

// Source kinds
const (
	KindDir  = "dir"
	KindHTTP = "http"
)

// SourceOptions selects and configures the shard source
type SourceOptions struct {
	Kind        string
	Dir         string // dir: shard tree root
	Paths       string // optional wet.paths(.gz) listing; required for http
	BaseURL     string
	CacheDir    string
	RPS         float64
	Burst       int
	HTTPTimeout time.Duration
	DefaultSize int64
}

// FromConfig reads CORE_SOURCE_*
func FromConfig(cfg config.Conf) SourceOptions {
	c := cfg.Prefix("CORE_SOURCE_")
	return SourceOptions{
		Kind:        c.MayEnum("KIND", KindDir, KindDir, KindHTTP),
		Dir:         c.MayString("DIR", "./shards"),
		Paths:       c.MayString("PATHS", ""),
		BaseURL:     c.MayString("BASE_URL", DefaultBaseURL),
		CacheDir:    c.MayString("CACHE_DIR", "./cache"),
		RPS:         c.MayFloat64("RPS", 2),
		Burst:       c.MayInt("BURST", 4),
		HTTPTimeout: c.MayDuration("HTTP_TIMEOUT", 30*time.Minute),
		DefaultSize: c.MayBytes("DEFAULT_SIZE", DefaultShardSize),
	}
}

// NewSource builds the configured source; obs may be nil
func NewSource(o SourceOptions, obs Observer) (Source, error) {
	var ids []string
	if o.Paths != "" {
		var err error
		if ids, err = LoadPaths(o.Paths); err != nil {
			return nil, err
		}
	}
	switch o.Kind {
	case KindDir, "":
		src := NewDirSource(o.Dir)
		if ids != nil {
			return PathsSource{Source: src, IDs: ids}, nil
		}
		return src, nil
	case KindHTTP:
		src, err := newHTTP(o, ids, obs)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, perr.Configf("unknown source kind %q", o.Kind)
	}
}

// NewHTTP builds the downloading source over o.Paths
func NewHTTP(o SourceOptions, obs Observer) (*HTTPSource, error) {
	if o.Paths == "" {
		return nil, perr.WithField(perr.Configf("http source needs a paths listing"), "CORE_SOURCE_PATHS")
	}
	ids, err := LoadPaths(o.Paths)
	if err != nil {
		return nil, err
	}
	return newHTTP(o, ids, obs)
}

func newHTTP(o SourceOptions, ids []string, obs Observer) (*HTTPSource, error) {
	opts := []HTTPOption{
		WithPaths(ids),
		WithRate(o.RPS, o.Burst),
		WithClient(&http.Client{Timeout: o.HTTPTimeout}),
		WithDefaultSize(o.DefaultSize),
	}
	if obs != nil {
		opts = append(opts, WithObserver(obs))
	}
	src, err := NewHTTPSource(o.BaseURL, o.CacheDir, opts...)
	if err != nil {
		return nil, err
	}
	logger.Named("commoncrawl").Info().Str("base", o.BaseURL).Str("cache", o.CacheDir).
		Int("paths", len(ids)).Msg("http source ready")
	return src, nil
}
