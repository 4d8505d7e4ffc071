package quality

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"

	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/platform/testkit"

	"github.com/google/go-cmp/cmp"
)

func writeUT1(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	testkit.WriteFile(t, root, "adult/domains", []byte("# comment\nfoo.bar\nExample.com\n\n"))
	testkit.WriteFile(t, root, "phishing/domains", []byte("evil.org\nexample.com\n"))
	testkit.WriteFile(t, root, "phishing/urls", []byte("www.good.com/bad/page\n"))
	testkit.WriteFile(t, root, "README", []byte("not a category"))
	return root
}

func TestLoadBlocklist(t *testing.T) {
	bl, err := LoadBlocklist(writeUT1(t), nil)
	if err != nil {
		t.Fatalf("LoadBlocklist: %v", err)
	}
	if diff := cmp.Diff([]string{"adult", "phishing"}, bl.Categories()); diff != "" {
		t.Fatalf("categories (-want +got):\n%s", diff)
	}
	if bl.Len() != 3 {
		t.Fatalf("Len = %d", bl.Len())
	}

	tests := []struct {
		url  string
		want []string
	}{
		{"https://foo.bar/", []string{"adult"}},
		{"https://WWW.Sub.Example.com:8080/x", []string{"adult", "phishing"}},
		{"http://deep.evil.org/a?b=c", []string{"phishing"}},
		{"https://good.com/bad/page/", []string{"phishing"}},
		{"https://good.com/fine", nil},
		{"https://notexample.com", nil},
		{"https://bar/", nil},
		{"", nil},
		{"http://10.0.0.1/", nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, bl.Lookup(tt.url)); diff != "" {
			t.Errorf("Lookup(%q) (-want +got):\n%s", tt.url, diff)
		}
	}
	if cat, ok := bl.Match("https://sub.example.com"); !ok || cat != "adult" {
		t.Fatalf("Match = %q %v", cat, ok)
	}
}

func TestLoadBlocklist_Categories(t *testing.T) {
	root := writeUT1(t)
	bl, err := LoadBlocklist(root, []string{"phishing"})
	if err != nil {
		t.Fatalf("LoadBlocklist: %v", err)
	}
	if _, ok := bl.Match("https://foo.bar"); ok {
		t.Fatalf("adult is not enforced")
	}
	if _, err := LoadBlocklist(root, []string{"phishing", "gambling"}); !perr.IsCode(err, perr.ErrorCodeBlocklist) {
		t.Fatalf("unknown category err = %v", err)
	}
}

func TestLoadBlocklist_Fatal(t *testing.T) {
	if _, err := LoadBlocklist(filepath.Join(t.TempDir(), "nope"), nil); !perr.IsCode(err, perr.ErrorCodeBlocklist) {
		t.Fatalf("missing root err = %v", err)
	}
	empty := t.TempDir()
	testkit.WriteFile(t, empty, "adult/domains", []byte("\n# nothing\n"))
	if _, err := LoadBlocklist(empty, nil); !perr.IsCode(err, perr.ErrorCodeBlocklist) {
		t.Fatalf("empty list err = %v", err)
	}
}

func TestSuffixes(t *testing.T) {
	got := suffixes("a.b.example.co.uk")
	want := []string{"a.b.example.co.uk", "b.example.co.uk", "example.co.uk"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("suffixes (-want +got):\n%s", diff)
	}
	if got := suffixes("co.uk"); len(got) != 1 {
		t.Fatalf("bare suffix = %v", got)
	}
}

func TestHeuristics(t *testing.T) {
	long := strings.Repeat("a reasonably long sentence of prose ", 4)
	short := "menu item"
	h := DefaultHeuristics()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"tiny prose", strings.Join([]string{long, long, long}, "\n"), []string{AnnotationTiny}},
		{"noise", "/////////////////////////", []string{AnnotationNoisy, AnnotationTiny}},
		{"clean", strings.Repeat(long+"\n", 9) + long, nil},
		{"header", strings.Join([]string{short, short, long, long, long, long, long, long, long, long}, "\n"), []string{AnnotationHeader}},
		{"footer", strings.Join([]string{long, long, long, long, long, long, long, long, short, short}, "\n"), []string{AnnotationFooter}},
		{"one short edge line is fine", strings.Join([]string{short, long, long, long, long, long, long, long, long, long}, "\n"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, h.Annotate(tt.text)); diff != "" {
				t.Fatalf("Annotate (-want +got):\n%s", diff)
			}
		})
	}
}

const lmTSV = " ab\t-1\nabc\t-1\nbc \t-1\n<unk>\t-5\n"

func TestCharLM(t *testing.T) {
	m, err := ReadCharLM(strings.NewReader(lmTSV))
	if err != nil {
		t.Fatalf("ReadCharLM: %v", err)
	}
	if got := m.Perplexity("abc"); math.Abs(got-math.E) > 1e-9 {
		t.Fatalf("Perplexity = %v, want e", got)
	}
	if got := m.Perplexity("zzz"); math.Abs(got-math.Exp(5)) > 1e-9 {
		t.Fatalf("unseen Perplexity = %v", got)
	}
	if !math.IsInf(m.Perplexity(""), 1) {
		t.Fatalf("empty text should be +Inf")
	}
	if _, err := ReadCharLM(strings.NewReader("abc\n")); !perr.IsCode(err, perr.ErrorCodeModel) {
		t.Fatalf("bad row err = %v", err)
	}
}

func TestLoadQualityModels(t *testing.T) {
	dir := t.TempDir()
	testkit.WriteFile(t, dir, "models/fr.lm.gz", testkit.Gzip(t, []byte(lmTSV)))
	testkit.WriteFile(t, dir, "models/de.lm", []byte("garbage"))
	manifest := testkit.WriteFile(t, dir, "quality.yaml", []byte(`
models:
  __label__fr: {path: models/fr.lm.gz, min: 1, max: 10}
  de: {path: models/de.lm, min: 1, max: 10}
`))
	q, err := LoadQualityModels(manifest, 0)
	if err != nil {
		t.Fatalf("LoadQualityModels: %v", err)
	}
	ctx := context.Background()

	r, ok := q.Score(ctx, "fr", "abc")
	if !ok || !r.InRange() || math.Abs(r.Perplexity-math.E) > 1e-9 {
		t.Fatalf("Score(fr) = %+v %v", r, ok)
	}
	// cached on second use
	if _, ok := q.cache.Get("fr"); !ok {
		t.Fatalf("fr model should be cached")
	}
	if _, ok := q.Score(ctx, "de", "abc"); ok {
		t.Fatalf("broken model should disable the check")
	}
	if !q.broken["de"] {
		t.Fatalf("de should be marked broken")
	}
	if _, ok := q.Score(ctx, "sw", "abc"); ok {
		t.Fatalf("missing model should skip")
	}

	bad := testkit.WriteFile(t, dir, "bad.yaml", []byte("models:\n  fr: {min: 3, max: 1, path: x}\n"))
	if _, err := LoadQualityModels(bad, 0); !perr.IsCode(err, perr.ErrorCodeConfig) {
		t.Fatalf("min > max err = %v", err)
	}
	if _, err := LoadQualityModels(filepath.Join(dir, "none.yaml"), 0); !perr.IsCode(err, perr.ErrorCodeConfig) {
		t.Fatalf("missing manifest err = %v", err)
	}
}

func TestFilterEvaluate(t *testing.T) {
	bl := NewBlocklist(map[string][]string{"blocked.example": {"adult"}}, nil)
	dir := t.TempDir()
	lm := testkit.WriteFile(t, dir, "fr.lm", []byte(lmTSV))
	qm, err := NewQualityModels(map[string]ModelSpec{
		"fr": {Path: lm, Min: 1, Max: 10},
		"it": {Path: lm, Min: 1, Max: 2},
	}, 1)
	if err != nil {
		t.Fatalf("NewQualityModels: %v", err)
	}
	f := New(bl, qm, DefaultOptions())
	ctx := context.Background()

	tests := []struct {
		name string
		d    Draft
		want Verdict
	}{
		{
			"blocklisted domain",
			Draft{URL: "https://www.blocked.example/page", Lang: "fr", Text: "abc"},
			Reject{Reason: "blocklist:adult", Detail: "blocked.example"},
		},
		{
			"noisy tiny",
			Draft{URL: "https://ok.example", Lang: "fr", Text: "//// #### ////"},
			Reject{Reason: ReasonNoisyTiny},
		},
		{
			"quality out of range",
			Draft{URL: "https://ok.example", Lang: "it", Text: "abc"},
			Reject{Reason: ReasonQuality, Detail: "perplexity 2.7 outside [1,2]"},
		},
		{
			"no model accepts without score",
			Draft{URL: "https://ok.example", Lang: "en", Text: "abc"},
			Accept{Annotations: []string{AnnotationTiny}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, f.Evaluate(ctx, tt.d)); diff != "" {
				t.Fatalf("Evaluate (-want +got):\n%s", diff)
			}
		})
	}

	got, ok := f.Evaluate(ctx, Draft{URL: "https://ok.example", Lang: "fr", Text: "abc"}).(Accept)
	if !ok || got.Score == nil || math.Abs(*got.Score-math.E) > 1e-9 {
		t.Fatalf("Evaluate(fr) = %#v", got)
	}
	if !IsBlocklistReason("blocklist:adult") || IsBlocklistReason(ReasonQuality) {
		t.Fatalf("IsBlocklistReason")
	}
}

func TestFilter_NoChecks(t *testing.T) {
	f := New(nil, nil, Options{})
	v := f.Evaluate(context.Background(), Draft{Text: "////"})
	if diff := cmp.Diff(Verdict(Accept{}), v); diff != "" {
		t.Fatalf("Evaluate (-want +got):\n%s", diff)
	}
}
