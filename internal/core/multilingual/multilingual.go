// Package multilingual decides whether a classified record mixes languages in
// proportions large enough to keep it whole instead of splitting it per language.
//
// Two criteria exist. Ratio ranks languages by line count and requires each of the
// top MaxLangs to hold more than the previous one's count divided by Ratio. Strict
// works on bytes: every language needs at least total/(languages+1) bytes, unknown
// lines may not exceed that share, and most lines must be confidently identified.
package multilingual

import (
	"cmp"
	"slices"

	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
)

// Lang is the tag multilingual documents are written under
const Lang = "multi"

// Mode selects the criterion
type Mode string

const (
	ModeOff    Mode = "off"
	ModeRatio  Mode = "ratio"
	ModeStrict Mode = "strict"
)

// ParseMode accepts off, ratio and strict; empty is off
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeOff, nil
	case ModeOff, ModeRatio, ModeStrict:
		return m, nil
	default:
		return "", perr.Configf("unknown multilingual mode %q", s)
	}
}

// Line is one classified line; Lang is empty when the line is unknown
type Line struct {
	Lang  string
	Conf  float64
	Bytes int
}

// Options tune the detector
type Options struct {
	Mode Mode `json:"mode"`
	// MinLines is the smallest record considered
	MinLines int `json:"min_lines" validate:"gte=1"`
	// MaxLangs caps the languages of a strict document and the ranked languages checked by ratio
	MaxLangs int `json:"max_langs" validate:"gte=2"`
	// Ratio is the allowed drop between consecutive ranked languages
	Ratio float64 `json:"ratio" validate:"gt=1"`
	// MinConfidence marks a line as confident, strict only
	MinConfidence float64 `json:"min_confidence" validate:"gte=0,lte=1"`
	// MinConfidentShare is the share of confident lines a strict document needs
	MinConfidentShare float64 `json:"min_confident_share" validate:"gte=0,lte=1"`
}

// DefaultOptions has detection off and the reference thresholds ready for either mode
func DefaultOptions() Options {
	return Options{
		Mode:              ModeOff,
		MinLines:          10,
		MaxLangs:          5,
		Ratio:             4,
		MinConfidence:     0.8,
		MinConfidentShare: 0.8,
	}
}

// Detector is stateless and safe for concurrent use
type Detector struct {
	opt Options
}

// New builds a Detector; zero thresholds take the defaults
func New(opt Options) *Detector {
	def := DefaultOptions()
	if opt.Mode == "" {
		opt.Mode = ModeOff
	}
	if opt.MinLines <= 0 {
		opt.MinLines = def.MinLines
	}
	if opt.MaxLangs < 2 {
		opt.MaxLangs = def.MaxLangs
	}
	if opt.Ratio <= 1 {
		opt.Ratio = def.Ratio
	}
	return &Detector{opt: opt}
}

// Enabled reports whether Detect can ever return true
func (d *Detector) Enabled() bool { return d != nil && d.opt.Mode != ModeOff }

// Detect reports whether lines form one multilingual document
func (d *Detector) Detect(lines []Line) bool {
	if !d.Enabled() || len(lines) < d.opt.MinLines {
		return false
	}
	if d.opt.Mode == ModeStrict {
		return d.strict(lines)
	}
	return d.ratio(lines)
}

type count struct {
	lang string
	n    int
}

// tally sums weight per language; the unknown bucket is always present
func tally(lines []Line, weight func(Line) int) []count {
	idx := map[string]int{"": 0}
	out := []count{{lang: ""}}
	for _, ln := range lines {
		i, ok := idx[ln.Lang]
		if !ok {
			i = len(out)
			idx[ln.Lang] = i
			out = append(out, count{lang: ln.Lang})
		}
		out[i].n += weight(ln)
	}
	return out
}

func (d *Detector) ratio(lines []Line) bool {
	counts := tally(lines, func(Line) int { return 1 })
	if len(counts)-1 < 2 {
		return false
	}
	slices.SortStableFunc(counts, func(a, b count) int {
		if c := cmp.Compare(b.n, a.n); c != 0 {
			return c
		}
		return cmp.Compare(a.lang, b.lang)
	})
	if counts[0].lang == "" {
		return false
	}
	checked := 0
	var threshold float64
	for _, c := range counts {
		if c.lang == "" {
			continue
		}
		if checked == d.opt.MaxLangs {
			break
		}
		if checked > 0 && float64(c.n) <= threshold {
			return false
		}
		threshold = float64(c.n) / d.opt.Ratio
		checked++
	}
	return true
}

func (d *Detector) strict(lines []Line) bool {
	confident := 0
	total := 0
	for _, ln := range lines {
		if ln.Lang != "" && ln.Conf >= d.opt.MinConfidence {
			confident++
		}
		total += ln.Bytes
	}
	if float64(confident)/float64(len(lines)) <= d.opt.MinConfidentShare {
		return false
	}

	counts := tally(lines, func(ln Line) int { return ln.Bytes })
	langs := len(counts) - 1
	if langs < 2 || langs > d.opt.MaxLangs {
		return false
	}
	threshold := total / len(counts)
	for _, c := range counts {
		if c.lang == "" {
			if c.n > threshold {
				return false
			}
			continue
		}
		if c.n < threshold {
			return false
		}
	}
	return true
}
