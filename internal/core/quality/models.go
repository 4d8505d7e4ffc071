package quality

import (
	"bufio"
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/oscar-project/ungoliant/internal/core/lid"
	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/platform/codec"
	"github.com/oscar-project/ungoliant/internal/platform/logger"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

// Manifest is the YAML file listing per-language quality models
//
//	models:
//	  fr: {path: fr.lm.gz, min: 10, max: 1000}
type Manifest struct {
	Models map[string]ModelSpec `yaml:"models"`
}

// ModelSpec points at one model; relative paths resolve against the manifest directory
type ModelSpec struct {
	Path string  `yaml:"path"`
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
}

// Result is a perplexity with the range it was judged against
type Result struct {
	Perplexity float64
	Min, Max   float64
}

// InRange reports Min <= Perplexity <= Max; a zero Max means unbounded
func (r Result) InRange() bool {
	if r.Perplexity < r.Min {
		return false
	}
	return r.Max <= 0 || r.Perplexity <= r.Max
}

// QualityModels lazily loads per-language models into an LRU.
// A language without a model, or whose model fails to load, is skipped
type QualityModels struct {
	specs map[string]ModelSpec
	cache *lru.Cache[string, *CharLM]
	group singleflight.Group

	mu     sync.Mutex
	broken map[string]bool
	warned map[string]bool
}

// LoadQualityModels parses the manifest at path; size <= 0 caches every listed model
func LoadQualityModels(path string, size int) (*QualityModels, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeConfig, "read quality manifest %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeConfig, "parse quality manifest %s", path)
	}
	base := filepath.Dir(path)
	specs := make(map[string]ModelSpec, len(m.Models))
	for lang, s := range m.Models {
		if s.Path == "" {
			return nil, perr.WithField(perr.Configf("quality model for %q has no path", lang), "models."+lang)
		}
		if s.Max > 0 && s.Min > s.Max {
			return nil, perr.WithField(perr.Configf("quality model for %q has min > max", lang), "models."+lang)
		}
		if !filepath.IsAbs(s.Path) {
			s.Path = filepath.Join(base, s.Path)
		}
		tag := lid.NormalizeLabel(lang)
		if tag == "" {
			return nil, perr.WithField(perr.Configf("quality model key %q is not a language tag", lang), "models."+lang)
		}
		specs[tag] = s
	}
	return NewQualityModels(specs, size)
}

// NewQualityModels builds the cache over already resolved specs
func NewQualityModels(specs map[string]ModelSpec, size int) (*QualityModels, error) {
	if size <= 0 {
		size = max(len(specs), 1)
	}
	cache, err := lru.New[string, *CharLM](size)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeConfig, "quality model cache")
	}
	return &QualityModels{specs: specs, cache: cache, broken: map[string]bool{}, warned: map[string]bool{}}, nil
}

// Languages lists the languages with a configured model
func (q *QualityModels) Languages() []string {
	out := make([]string, 0, len(q.specs))
	for l := range q.specs {
		out = append(out, l)
	}
	return out
}

// Score returns the perplexity of text under lang's model; ok is false when no usable model exists
func (q *QualityModels) Score(ctx context.Context, lang, text string) (Result, bool) {
	spec, ok := q.specs[lang]
	if !ok {
		q.warnOnce(ctx, lang, nil)
		return Result{}, false
	}
	m, err := q.model(lang, spec)
	if err != nil {
		q.warnOnce(ctx, lang, err)
		return Result{}, false
	}
	return Result{Perplexity: m.Perplexity(text), Min: spec.Min, Max: spec.Max}, true
}

func (q *QualityModels) model(lang string, spec ModelSpec) (*CharLM, error) {
	if m, ok := q.cache.Get(lang); ok {
		return m, nil
	}
	q.mu.Lock()
	broken := q.broken[lang]
	q.mu.Unlock()
	if broken {
		return nil, perr.Newf(perr.ErrorCodeModel, "quality model for %s disabled", lang)
	}

	v, err, _ := q.group.Do(lang, func() (any, error) {
		m, err := LoadCharLM(spec.Path)
		if err != nil {
			q.mu.Lock()
			q.broken[lang] = true
			q.mu.Unlock()
			return nil, err
		}
		q.cache.Add(lang, m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*CharLM), nil
}

func (q *QualityModels) warnOnce(ctx context.Context, lang string, err error) {
	q.mu.Lock()
	seen := q.warned[lang]
	q.warned[lang] = true
	q.mu.Unlock()
	if seen {
		return
	}
	ev := logger.C(ctx).Warn().Str("lang", lang)
	if err != nil {
		ev.Err(err).Msg("quality model unusable, check disabled for language")
		return
	}
	ev.Msg("no quality model, check skipped for language")
}

// CharLM is a character trigram language model scored by perplexity.
// Files are TSV rows "trigram \t logprob" (natural log) with an optional <unk> row
type CharLM struct {
	grams map[string]float64
	unk   float64
}

// LoadCharLM reads a model file, optionally gzip or zstd compressed
func LoadCharLM(path string) (*CharLM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeModel, "open quality model %s", path)
	}
	defer f.Close()
	r, err := codec.FromPath(path).NewReader(f)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeModel, "open quality model %s", path)
	}
	defer r.Close()
	return ReadCharLM(r)
}

// ReadCharLM parses a model from r
func ReadCharLM(r io.Reader) (*CharLM, error) {
	m := &CharLM{grams: map[string]float64{}, unk: math.Inf(1)}
	explicit := false
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		gram, val, ok := strings.Cut(text, "\t")
		lp, err := strconv.ParseFloat(val, 64)
		if !ok || err != nil || lp > 0 {
			return nil, perr.Newf(perr.ErrorCodeModel, "line %d: want \"trigram<TAB>logprob\"", line)
		}
		if gram == lid.UnknownGram {
			m.unk, explicit = lp, true
			continue
		}
		m.grams[gram] = lp
		if !explicit {
			m.unk = min(m.unk, lp)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeModel, "read quality model")
	}
	if len(m.grams) == 0 {
		return nil, perr.New(perr.ErrorCodeModel, "quality model has no rows")
	}
	if !explicit {
		m.unk--
	}
	return m, nil
}

// Perplexity is exp of the mean negative log probability over the text's trigrams.
// Lines are joined with spaces first
func (m *CharLM) Perplexity(text string) float64 {
	grams := lid.Trigrams(strings.ReplaceAll(text, "\n", " "))
	if len(grams) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for _, g := range grams {
		if lp, ok := m.grams[g]; ok {
			sum += lp
		} else {
			sum += m.unk
		}
	}
	return math.Exp(-sum / float64(len(grams)))
}
