package lid

import (
	"bufio"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/platform/codec"
)

// UnknownGram is the model row holding a language's log probability for unseen trigrams
const UnknownGram = "<unk>"

// NGramModel is a character-trigram naive Bayes identifier.
// Model files are TSV rows "lang \t trigram \t logprob", optionally gzip or zstd compressed
type NGramModel struct {
	langs []string
	grams map[string][]float32
	floor []float32
}

// LoadNGram reads a model file; any error is fatal for the caller
func LoadNGram(path string) (*NGramModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeModel, "open lid model %s", path)
	}
	defer f.Close()

	r, err := codec.FromPath(path).NewReader(f)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeModel, "open lid model %s", path)
	}
	defer r.Close()

	m, err := ReadNGram(r)
	if err != nil {
		return nil, perr.WithOp(err, "load "+path)
	}
	return m, nil
}

// ReadNGram parses a model from r
func ReadNGram(r io.Reader) (*NGramModel, error) {
	type row struct {
		lang, gram string
		lp         float32
	}
	var rows []row
	langIdx := map[string]int{}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		parts := strings.Split(text, "\t")
		if len(parts) != 3 {
			return nil, perr.Newf(perr.ErrorCodeModel, "line %d: want 3 tab separated fields, got %d", line, len(parts))
		}
		lp, err := strconv.ParseFloat(parts[2], 32)
		if err != nil || lp > 0 {
			return nil, perr.Newf(perr.ErrorCodeModel, "line %d: bad log probability %q", line, parts[2])
		}
		lang := NormalizeLabel(parts[0])
		if lang == "" {
			return nil, perr.Newf(perr.ErrorCodeModel, "line %d: bad language label %q", line, parts[0])
		}
		if _, ok := langIdx[lang]; !ok {
			langIdx[lang] = len(langIdx)
		}
		rows = append(rows, row{lang: lang, gram: parts[1], lp: float32(lp)})
	}
	if err := sc.Err(); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeModel, "read lid model")
	}
	if len(langIdx) == 0 {
		return nil, perr.New(perr.ErrorCodeModel, "lid model has no rows")
	}

	m := &NGramModel{
		langs: make([]string, len(langIdx)),
		grams: map[string][]float32{},
		floor: make([]float32, len(langIdx)),
	}
	for l, i := range langIdx {
		m.langs[i] = l
		m.floor[i] = float32(math.Inf(1))
	}

	explicit := make([]bool, len(langIdx))
	for _, r := range rows {
		i := langIdx[r.lang]
		if r.gram == UnknownGram {
			m.floor[i] = r.lp
			explicit[i] = true
			continue
		}
		if !explicit[i] && r.lp < m.floor[i] {
			m.floor[i] = r.lp
		}
	}
	// without an explicit <unk> row, unseen trigrams cost one nat more than the rarest seen one
	for i := range m.floor {
		if !explicit[i] {
			m.floor[i]--
		}
	}
	for _, r := range rows {
		if r.gram == UnknownGram {
			continue
		}
		v, ok := m.grams[r.gram]
		if !ok {
			v = slices.Clone(m.floor)
			m.grams[r.gram] = v
		}
		v[langIdx[r.lang]] = r.lp
	}
	return m, nil
}

// Languages lists the labels the model knows, in file order
func (m *NGramModel) Languages() []string { return slices.Clone(m.langs) }

// Predict scores every language by summed trigram log probability and returns the
// top k posteriors under a uniform prior
func (m *NGramModel) Predict(text string, k int) []Prediction {
	grams := Trigrams(text)
	if len(grams) == 0 || k <= 0 {
		return nil
	}
	scores := make([]float64, len(m.langs))
	for _, g := range grams {
		v, ok := m.grams[g]
		for i := range scores {
			if ok {
				scores[i] += float64(v[i])
			} else {
				scores[i] += float64(m.floor[i])
			}
		}
	}

	maxScore := math.Inf(-1)
	for _, s := range scores {
		maxScore = max(maxScore, s)
	}
	var z float64
	for i, s := range scores {
		scores[i] = math.Exp(s - maxScore)
		z += scores[i]
	}

	out := make([]Prediction, len(m.langs))
	for i, l := range m.langs {
		out[i] = Prediction{Label: l, Prob: scores[i] / z}
	}
	slices.SortStableFunc(out, func(a, b Prediction) int {
		switch {
		case a.Prob > b.Prob:
			return -1
		case a.Prob < b.Prob:
			return 1
		}
		return strings.Compare(a.Label, b.Label)
	})
	return out[:min(k, len(out))]
}

// Trigrams lower-cases text, pads it with one space on each side and returns its rune trigrams
func Trigrams(text string) []string {
	rs := []rune(" " + strings.ToLower(strings.Join(strings.Fields(text), " ")) + " ")
	if len(rs) < 3 {
		return nil
	}
	out := make([]string, 0, len(rs)-2)
	for i := 0; i+3 <= len(rs); i++ {
		out = append(out, string(rs[i:i+3]))
	}
	return out
}
