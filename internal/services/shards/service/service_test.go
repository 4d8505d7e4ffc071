package service

import (
	"bytes"
	"context"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oscar-project/ungoliant/internal/core/lid"
	"github.com/oscar-project/ungoliant/internal/core/multilingual"
	"github.com/oscar-project/ungoliant/internal/core/quality"
	"github.com/oscar-project/ungoliant/internal/platform/codec"
	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/platform/testkit"
	"github.com/oscar-project/ungoliant/internal/services/shards/domain"
	"github.com/oscar-project/ungoliant/internal/services/shards/output"

	"github.com/google/go-cmp/cmp"
)

// prefixOracle labels a line by its first word when that word is a known tag
type prefixOracle struct{}

func (prefixOracle) Predict(text string, _ int) []lid.Prediction {
	w, _, _ := strings.Cut(text, " ")
	switch w {
	case "fr", "en", "de":
		return []lid.Prediction{{Label: "__label__" + w, Prob: 0.95}}
	}
	return nil
}

func newProcessor(t *testing.T, f Evaluator, out output.Options) (*Processor, string) {
	t.Helper()
	dir := t.TempDir()
	if f == nil {
		f = quality.New(nil, nil, quality.Options{})
	}
	p := New(lid.New(prefixOracle{}, lid.DefaultOptions()), f, Config{
		OutDir:       dir,
		MinLineChars: 20,
		Absorb:       Absorb{MaxLines: 2, MaxChars: 100},
		Output:       out,
	})
	return p, dir
}

func scanAll(t *testing.T, dir string) []domain.Document {
	t.Helper()
	var docs []domain.Document
	if _, err := output.Scan(dir, func(d domain.Document) error {
		docs = append(docs, d)
		return nil
	}); err != nil {
		t.Fatalf("Scan %s: %v", dir, err)
	}
	return docs
}

func frLine(i int) string { return "fr ceci est une phrase française numéro " + string(rune('a'+i)) }

func TestProcess_AbsorbsShortMinorityLine(t *testing.T) {
	body := testkit.Lines(frLine(0), frLine(1), frLine(2), "en a short english aside here", frLine(3), frLine(4))
	shard := testkit.WETShard(t, testkit.WETRecord{URI: "https://fr.example/page", Body: body})

	p, _ := newProcessor(t, nil, output.Options{Codec: codec.Gzip})
	res, err := p.Process(context.Background(), "seg/shard-00001.warc.wet.gz", bytes.NewReader(shard))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Records != 1 || res.Documents() != 1 || res.Languages["fr"].Documents != 1 {
		t.Fatalf("result = %+v", res)
	}

	docs := scanAll(t, p.Layout().LangDir("seg/shard-00001.warc.wet.gz", "fr"))
	d := docs[0]
	if d.Text != body || d.AbsorbedLines != 1 || d.LineStart != 0 || d.LineEnd != 5 {
		t.Fatalf("document = %+v", d)
	}
	if c := d.Confidence; c.Min != 0.95 || c.Max != 0.95 || math.Abs(c.Mean-0.95) > 1e-9 {
		t.Fatalf("confidence = %+v", d.Confidence)
	}
	if d.ID != DocumentID("seg/shard-00001.warc.wet.gz", 1, 0).String() || d.Bytes != len(body) {
		t.Fatalf("id/bytes = %s %d", d.ID, d.Bytes)
	}
}

func TestProcess_LongMinorityRunSplits(t *testing.T) {
	long := "en " + strings.Repeat("this english paragraph is long ", 5)
	body := testkit.Lines("unknown leading boilerplate line", frLine(0), long, frLine(1), "short", "trailing noise without any tag")
	shard := testkit.WETShard(t, testkit.WETRecord{URI: "https://mixed.example/", Body: body})

	p, _ := newProcessor(t, nil, output.Options{})
	res, err := p.Process(context.Background(), "mixed.warc.wet.gz", bytes.NewReader(shard))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := map[string]domain.LangStats{
		"fr": {Documents: 2, Bytes: int64(len(frLine(0)) + len(frLine(1))), Parts: 1},
		"en": {Documents: 1, Bytes: int64(len(strings.TrimSpace(long))), Parts: 1},
	}
	if diff := cmp.Diff(want, res.Languages); diff != "" {
		t.Fatalf("languages (-want +got):\n%s", diff)
	}
	fr := scanAll(t, p.Layout().LangDir("mixed.warc.wet.gz", "fr"))
	if fr[0].LineStart != 1 || fr[1].LineStart != 3 || fr[1].AbsorbedLines != 0 {
		t.Fatalf("fr documents = %+v", fr)
	}
}

func TestProcess_MultilingualRecordStaysWhole(t *testing.T) {
	var mixed, mono []string
	var langs []string
	for i := range 6 {
		mixed = append(mixed, frLine(i), "en this is an english sentence number "+string(rune('a'+i)))
		langs = append(langs, "fr", "en")
	}
	for i := range 12 {
		mono = append(mono, frLine(i))
	}
	shard := testkit.WETShard(t,
		testkit.WETRecord{URI: "https://bilingual.example/", Body: testkit.Lines(mixed...)},
		testkit.WETRecord{URI: "https://fr.example/", Body: testkit.Lines(mono...)},
	)

	p := New(lid.New(prefixOracle{}, lid.DefaultOptions()), quality.New(nil, nil, quality.Options{}), Config{
		OutDir:       t.TempDir(),
		MinLineChars: 20,
		Absorb:       Absorb{MaxLines: 2, MaxChars: 100},
		Multi:        multilingual.Options{Mode: multilingual.ModeStrict},
		LSH:          true,
	})
	res, err := p.Process(context.Background(), "multi.warc.wet.gz", bytes.NewReader(shard))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Languages[multilingual.Lang].Documents != 1 || res.Languages["fr"].Documents != 1 || res.Languages["en"].Documents != 0 {
		t.Fatalf("languages = %+v", res.Languages)
	}

	docs := scanAll(t, p.Layout().LangDir("multi.warc.wet.gz", multilingual.Lang))
	d := docs[0]
	if d.Text != strings.Join(mixed, "\n") || d.LineStart != 0 || d.LineEnd != 11 || d.URL != "https://bilingual.example/" {
		t.Fatalf("document = %+v", d)
	}
	if diff := cmp.Diff(langs, d.LineLangs); diff != "" {
		t.Fatalf("line langs (-want +got):\n%s", diff)
	}
	if d.LSH == "" || d.Confidence.Min != 0.95 {
		t.Fatalf("lsh=%q confidence=%+v", d.LSH, d.Confidence)
	}
	fr := scanAll(t, p.Layout().LangDir("multi.warc.wet.gz", "fr"))
	if len(fr) != 1 || fr[0].LineLangs != nil || fr[0].LSH == "" {
		t.Fatalf("fr documents = %+v", fr)
	}
}

func TestProcess_BlocklistedRecordEmitsNothing(t *testing.T) {
	bl := quality.NewBlocklist(map[string][]string{"bad.example": {"adult"}}, nil)
	shard := testkit.WETShard(t,
		testkit.WETRecord{URI: "https://www.bad.example/x", Body: testkit.Lines(frLine(0), "en an english line long enough")},
		testkit.WETRecord{URI: "https://good.example/", Body: frLine(1)},
	)
	p, _ := newProcessor(t, quality.New(bl, nil, quality.Options{}), output.Options{})
	res, err := p.Process(context.Background(), "bl.warc.wet.gz", bytes.NewReader(shard))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Rejected["blocklist:adult"] != 2 || res.Documents() != 1 {
		t.Fatalf("result = %+v", res)
	}
	if diff := cmp.Diff(map[string]int64{"fr": 1, "en": 1}, res.RejectedByLang); diff != "" {
		t.Fatalf("rejected by language (-want +got):\n%s", diff)
	}
	docs := scanAll(t, p.Layout().LangDir("bl.warc.wet.gz", "fr"))
	if len(docs) != 1 || docs[0].URL != "https://good.example/" {
		t.Fatalf("docs = %+v", docs)
	}
	if _, err := os.Stat(p.Layout().LangDir("bl.warc.wet.gz", "en")); !os.IsNotExist(err) {
		t.Fatalf("no en output expected, stat err = %v", err)
	}
}

func TestProcess_BadShardPublishesNothing(t *testing.T) {
	p, dir := newProcessor(t, nil, output.Options{})
	_, err := p.Process(context.Background(), "broken.warc.wet.gz", strings.NewReader("this is not gzip"))
	if !perr.IsCode(err, perr.ErrorCodeDecompress) {
		t.Fatalf("err = %v", err)
	}
	_, err = p.Process(context.Background(), "notwarc.warc.wet.gz", bytes.NewReader(testkit.Gzip(t, []byte("hello\n"))))
	if !perr.IsCode(err, perr.ErrorCodeParse) {
		t.Fatalf("err = %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "shards"))
	if len(entries) != 0 {
		t.Fatalf("nothing should be published or staged, found %d entries", len(entries))
	}
}

func TestProcess_CanceledLeavesNoOutput(t *testing.T) {
	shard := testkit.WETShard(t, testkit.WETRecord{URI: "https://a.example/", Body: frLine(0)})
	p, dir := newProcessor(t, nil, output.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Process(ctx, "c.warc.wet.gz", bytes.NewReader(shard)); !perr.IsCode(err, perr.ErrorCodeCanceled) {
		t.Fatalf("err = %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "shards"))
	if len(entries) != 0 {
		t.Fatalf("found %d entries", len(entries))
	}
}

func TestProcess_IsDeterministic(t *testing.T) {
	var recs []testkit.WETRecord
	for i := range 20 {
		recs = append(recs, testkit.WETRecord{
			URI:  "https://site.example/" + string(rune('a'+i)),
			Body: testkit.Lines(frLine(i%5), "en english text that is long enough "+string(rune('a'+i)), "", "de deutscher text der lang genug ist"),
		})
	}
	shard := testkit.WETShard(t, recs...)
	opt := output.Options{Codec: codec.Zstd, SplitDocs: 7}

	tree := func() map[string][]byte {
		p, dir := newProcessor(t, nil, opt)
		if _, err := p.Process(context.Background(), "det.warc.wet.gz", bytes.NewReader(shard)); err != nil {
			t.Fatalf("Process: %v", err)
		}
		files := map[string][]byte{}
		root := filepath.Join(dir, "shards")
		_ = filepath.WalkDir(root, func(path string, e fs.DirEntry, err error) error {
			if err != nil || e.IsDir() {
				return err
			}
			rel, _ := filepath.Rel(root, path)
			b, _ := os.ReadFile(path)
			files[rel] = b
			return nil
		})
		return files
	}
	a, b := tree(), tree()
	if len(a) == 0 {
		t.Fatalf("no output")
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("outputs differ between runs:\n%s", diff)
	}
	// 20 docs per language at 7 per part
	if _, ok := a[filepath.Join("det", "fr", "part-00002.jsonl.zst")]; !ok {
		t.Fatalf("expected three fr parts, have %v", keys(a))
	}
}

func TestProcess_RerunReplacesOutput(t *testing.T) {
	p, _ := newProcessor(t, nil, output.Options{})
	first := testkit.WETShard(t, testkit.WETRecord{URI: "https://a.example/", Body: testkit.Lines("en first english document text")})
	second := testkit.WETShard(t, testkit.WETRecord{URI: "https://a.example/", Body: frLine(0)})
	ctx := context.Background()
	if _, err := p.Process(ctx, "r.warc.wet.gz", bytes.NewReader(first)); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := p.Process(ctx, "r.warc.wet.gz", bytes.NewReader(second)); err != nil {
		t.Fatalf("second: %v", err)
	}
	if _, err := os.Stat(p.Layout().LangDir("r.warc.wet.gz", "en")); !os.IsNotExist(err) {
		t.Fatalf("stale en output survived: %v", err)
	}
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
