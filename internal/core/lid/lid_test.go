package lid

import (
	"strings"
	"testing"

	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/platform/testkit"
)

type stubOracle struct {
	preds []Prediction
	calls int
	panic bool
}

func (s *stubOracle) Predict(string, int) []Prediction {
	s.calls++
	if s.panic {
		panic("model exploded")
	}
	return s.preds
}

const longLine = "this line is comfortably longer than twenty runes"

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		preds []Prediction
		want  Outcome
		calls int
	}{
		{"blank", "   ", nil, Unknown{Reason: ReasonShort}, 0},
		{"short skips oracle", "short line", []Prediction{{"__label__en", 1}}, Unknown{Reason: ReasonShort}, 0},
		{"no prediction", longLine, nil, Unknown{Reason: ReasonNoPrediction}, 1},
		{"empty label", longLine, []Prediction{{"__label__", 0.99}}, Unknown{Reason: ReasonNoPrediction}, 1},
		{"path label", longLine, []Prediction{{"__label__../etc", 0.99}}, Unknown{Reason: ReasonNoPrediction}, 1},
		{"below threshold", longLine, []Prediction{{"__label__en", 0.79}}, Unknown{Reason: ReasonLowConfidence}, 1},
		{"at threshold", longLine, []Prediction{{"__label__en", 0.8}}, Identified{Lang: "en", Confidence: 0.8}, 1},
		{"label normalized", "  " + longLine + "  ", []Prediction{{"__label__FR", 0.95}}, Identified{Lang: "fr", Confidence: 0.95}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &stubOracle{preds: tt.preds}
			got := New(o, DefaultOptions()).Classify(tt.line)
			if got != tt.want {
				t.Fatalf("Classify = %#v, want %#v", got, tt.want)
			}
			if o.calls != tt.calls {
				t.Fatalf("oracle calls = %d, want %d", o.calls, tt.calls)
			}
		})
	}
}

func TestClassify_PanickingOracleIsUnknown(t *testing.T) {
	c := New(&stubOracle{panic: true}, DefaultOptions())
	testkit.MustNotPanic(t, func() {
		if got := c.Classify(longLine); got != (Unknown{Reason: ReasonNoPrediction}) {
			t.Fatalf("Classify = %#v", got)
		}
	})
}

func TestClassify_MinCharsCountsRunes(t *testing.T) {
	o := &stubOracle{preds: []Prediction{{"el", 0.9}}}
	c := New(o, Options{MinChars: 5, Threshold: 0.5})
	// 5 runes, 10 bytes
	if got := c.Classify("αβγδε"); got != (Identified{Lang: "el", Confidence: 0.9}) {
		t.Fatalf("Classify = %#v", got)
	}
}

func TestNormalizeLabel(t *testing.T) {
	for in, want := range map[string]string{
		"__label__en": "en",
		"__label__FR": "fr",
		"pt_BR":       "pt-br",
		" zh ":        "zh",
		"":            "",
		"../etc":      "",
		"a/b":         "",
		`a\b`:         "",
		"fr.bak":      "",
	} {
		if got := NormalizeLabel(in); got != want {
			t.Errorf("NormalizeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTrigrams(t *testing.T) {
	got := Trigrams("Ab  C")
	want := []string{" ab", "ab ", "b c", " c "}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("Trigrams = %q, want %q", got, want)
	}
	if Trigrams("") != nil {
		t.Fatalf("empty text should have no trigrams")
	}
}

const modelTSV = `# tiny two language model
__label__en	 th	-0.5
__label__en	the	-0.5
__label__en	he 	-0.5
__label__en	<unk>	-9
__label__fr	 le	-0.5
__label__fr	les	-0.5
__label__fr	es 	-0.5
__label__fr	<unk>	-9
`

func TestNGramModel_Predict(t *testing.T) {
	m, err := ReadNGram(strings.NewReader(modelTSV))
	if err != nil {
		t.Fatalf("ReadNGram: %v", err)
	}
	if got := m.Languages(); len(got) != 2 || got[0] != "en" || got[1] != "fr" {
		t.Fatalf("Languages = %v", got)
	}

	preds := m.Predict("the the the the", 2)
	if len(preds) != 2 || preds[0].Label != "en" || preds[0].Prob < 0.99 {
		t.Fatalf("Predict(en) = %+v", preds)
	}
	if sum := preds[0].Prob + preds[1].Prob; sum < 0.999 || sum > 1.001 {
		t.Fatalf("posteriors should sum to 1, got %v", sum)
	}
	if p := m.Predict("les les les les", 1); len(p) != 1 || p[0].Label != "fr" {
		t.Fatalf("Predict(fr) = %+v", p)
	}
	if p := m.Predict("", 1); p != nil {
		t.Fatalf("empty text = %+v", p)
	}

	c := New(m, DefaultOptions())
	if got, ok := c.Classify("the the the the the the the").(Identified); !ok || got.Lang != "en" {
		t.Fatalf("Classify = %#v", got)
	}
	// unseen trigrams cost the same everywhere, so the posterior is flat
	if got := c.Classify("xyz qwv xyz qwv xyz qwv"); got != (Unknown{Reason: ReasonLowConfidence}) {
		t.Fatalf("Classify(unseen) = %#v", got)
	}
}

func TestReadNGram_ImplicitFloor(t *testing.T) {
	m, err := ReadNGram(strings.NewReader("en\taaa\t-1\nen\tbbb\t-3\nde\tccc\t-2\n"))
	if err != nil {
		t.Fatalf("ReadNGram: %v", err)
	}
	if m.floor[0] != -4 || m.floor[1] != -3 {
		t.Fatalf("floor = %v", m.floor)
	}
	if v := m.grams["ccc"]; v[0] != -4 || v[1] != -2 {
		t.Fatalf("ccc row = %v", v)
	}
}

func TestReadNGram_Errors(t *testing.T) {
	for name, in := range map[string]string{
		"empty":         "",
		"two fields":    "en\tthe\n",
		"positive prob": "en\tthe\t0.5\n",
		"not a number":  "en\tthe\tx\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadNGram(strings.NewReader(in))
			if !perr.IsCode(err, perr.ErrorCodeModel) {
				t.Fatalf("err = %v, want model error", err)
			}
		})
	}
}

func TestLoadNGram(t *testing.T) {
	dir := t.TempDir()
	p := testkit.WriteFile(t, dir, "lid.tsv.gz", testkit.Gzip(t, []byte(modelTSV)))
	m, err := LoadNGram(p)
	if err != nil {
		t.Fatalf("LoadNGram: %v", err)
	}
	if len(m.Languages()) != 2 {
		t.Fatalf("Languages = %v", m.Languages())
	}

	if _, err := LoadNGram(dir + "/missing.tsv"); !perr.IsCode(err, perr.ErrorCodeModel) {
		t.Fatalf("missing file err = %v", err)
	}
	bad := testkit.WriteFile(t, dir, "bad.tsv.gz", []byte("not gzip"))
	if _, err := LoadNGram(bad); !perr.IsCode(err, perr.ErrorCodeModel) {
		t.Fatalf("bad gzip err = %v", err)
	}
}

func TestScriptOracleAndChain(t *testing.T) {
	var s ScriptOracle
	p := s.Predict("이것은 충분히 긴 한국어 문장입니다 정말로 그렇습니다", 1)
	if len(p) != 1 || p[0].Label != "ko" || p[0].Prob < 0.9 {
		t.Fatalf("ScriptOracle = %+v", p)
	}
	if p := s.Predict("plain latin text that could be anything", 1); p != nil {
		t.Fatalf("latin should be undecided, got %+v", p)
	}

	chain := Chain{ScriptOracle{}, &stubOracle{preds: []Prediction{{"en", 0.9}}}}
	if p := chain.Predict("plain latin text that could be anything", 1); len(p) != 1 || p[0].Label != "en" {
		t.Fatalf("Chain fallback = %+v", p)
	}
	if p := (Chain{}).Predict("x", 1); p != nil {
		t.Fatalf("empty chain = %+v", p)
	}
}
