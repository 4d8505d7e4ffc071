// Package quality decides whether a document candidate is kept.
// It combines a domain blocklist, optional per-language perplexity models
// and cheap text heuristics that annotate rather than reject
package quality

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/oscar-project/ungoliant/internal/platform/logger"
)

// Reject reasons that are not blocklist categories
const (
	ReasonQuality   = "quality"
	ReasonNoisyTiny = "noisy_tiny"

	// blocklistPrefix is joined with the matched category, e.g. "blocklist:adult"
	blocklistPrefix = "blocklist:"
)

// Draft is a document candidate before it is accepted
type Draft struct {
	URL  string
	Lang string
	Text string
}

// Verdict is either Accept or Reject
type Verdict interface{ isVerdict() }

// Accept keeps the document; Score is nil when no quality model ran
type Accept struct {
	Score       *float64
	Annotations []string
}

// Reject drops the document
type Reject struct {
	Reason string
	Detail string
}

func (Accept) isVerdict() {}
func (Reject) isVerdict() {}

// Options toggle the heuristic stage
type Options struct {
	// Annotate enables the tiny/noisy/header/footer annotations
	Annotate bool `json:"annotate"`
	// DropNoisyTiny rejects documents annotated both noisy and tiny
	DropNoisyTiny bool `json:"drop_noisy_tiny"`
	Heuristics    Heuristics
}

// DefaultOptions annotates and drops noisy tiny documents
func DefaultOptions() Options {
	return Options{Annotate: true, DropNoisyTiny: true, Heuristics: DefaultHeuristics()}
}

// Filter is immutable after New and safe for concurrent use
type Filter struct {
	blocklist *Blocklist
	models    *QualityModels
	opt       Options
}

// New builds a Filter; a nil blocklist or nil models disables that check
func New(bl *Blocklist, qm *QualityModels, opt Options) *Filter {
	return &Filter{blocklist: bl, models: qm, opt: opt}
}

// Evaluate runs the domain check, the heuristics and the quality model, in that order
func (f *Filter) Evaluate(ctx context.Context, d Draft) Verdict {
	if f.blocklist != nil {
		if cat, ok := f.blocklist.Match(d.URL); ok {
			return Reject{Reason: blocklistPrefix + cat, Detail: hostOf(d.URL)}
		}
	}

	var ann []string
	if f.opt.Annotate {
		ann = f.opt.Heuristics.Annotate(d.Text)
		if f.opt.DropNoisyTiny && slices.Contains(ann, AnnotationNoisy) && slices.Contains(ann, AnnotationTiny) {
			return Reject{Reason: ReasonNoisyTiny}
		}
	}

	if f.models == nil {
		return Accept{Annotations: ann}
	}
	r, ok := f.models.Score(ctx, d.Lang, d.Text)
	if !ok {
		return Accept{Annotations: ann}
	}
	if !r.InRange() {
		logger.C(ctx).Debug().Str("lang", d.Lang).Float64("perplexity", r.Perplexity).Msg("quality reject")
		return Reject{Reason: ReasonQuality, Detail: fmt.Sprintf("perplexity %.1f outside [%g,%g]", r.Perplexity, r.Min, r.Max)}
	}
	score := r.Perplexity
	return Accept{Score: &score, Annotations: ann}
}

// IsBlocklistReason reports whether a reject reason came from the domain check
func IsBlocklistReason(reason string) bool { return strings.HasPrefix(reason, blocklistPrefix) }
