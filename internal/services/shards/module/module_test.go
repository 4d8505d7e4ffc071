package module

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/oscar-project/ungoliant/internal/modkit"
	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/platform/testkit"
)

func TestFromConfig_Defaults(t *testing.T) {
	o := FromConfig(modkit.Deps{}.Cfg)
	if o.SplitBytes != 500_000_000 || o.Codec != "gzip" || o.MinLineChars != 20 {
		t.Fatalf("defaults = %+v", o)
	}
	if o.LIDThreshold != 0.8 || !o.DropNoisyTiny || !o.Annotate || o.AbsorbMaxLines != 2 {
		t.Fatalf("defaults = %+v", o)
	}
	if o.MultiMode != "off" || o.MultiMaxLangs != 5 || o.MultiRatio != 4 || !o.LSH {
		t.Fatalf("defaults = %+v", o)
	}
}

func TestFromConfig_Env(t *testing.T) {
	t.Setenv("CORE_SHARDS_SPLIT_SIZE", "1MB")
	t.Setenv("CORE_SHARDS_CODEC", "ZSTD")
	t.Setenv("CORE_FILTER_CATEGORIES", "adult, phishing,")
	t.Setenv("CORE_LID_THRESHOLD", "0.5")
	t.Setenv("CORE_SHARDS_MULTI_MODE", "strict")
	t.Setenv("CORE_SHARDS_MULTI_MAX_LANGS", "3")

	o := FromConfig(modkit.Deps{}.Cfg)
	if o.SplitBytes != 1_000_000 || o.Codec != "zstd" || o.LIDThreshold != 0.5 {
		t.Fatalf("options = %+v", o)
	}
	if o.MultiMode != "strict" || o.MultiMaxLangs != 3 {
		t.Fatalf("multi = %q %d", o.MultiMode, o.MultiMaxLangs)
	}
	if len(o.Categories) != 2 || o.Categories[1] != "phishing" {
		t.Fatalf("categories = %v", o.Categories)
	}
}

func TestNew_Failures(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		o    Options
		code perr.ErrorCode
	}{
		{"threshold out of range", Options{OutDir: dir, LIDThreshold: 1.5}, perr.ErrorCodeValidation},
		{"missing model", Options{OutDir: dir, LIDModelPath: filepath.Join(dir, "nope.tsv")}, perr.ErrorCodeModel},
		{"missing blocklist", Options{OutDir: dir, BlocklistRoot: filepath.Join(dir, "ut1")}, perr.ErrorCodeBlocklist},
		{"unknown codec", Options{OutDir: dir, Codec: "lz4"}, perr.ErrorCodeConfig},
		{"unknown multilingual mode", Options{OutDir: dir, MultiMode: "loose"}, perr.ErrorCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(modkit.Deps{}, tt.o)
			if !perr.IsCode(err, tt.code) {
				t.Fatalf("err = %v, want code %v", err, tt.code)
			}
		})
	}
}

func TestNew_ProcessWithScriptFallback(t *testing.T) {
	out := t.TempDir()
	m, err := New(modkit.Deps{}, Options{OutDir: out, Codec: "none"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.Name() != "shards" || m.Options().OutDir != out {
		t.Fatalf("module = %s %+v", m.Name(), m.Options())
	}
	ports := m.Ports().(Ports)

	body := testkit.Lines(
		"ひらがなだけでかいたぶんしょうはとてもよみにくいですがこれはてすとです",
		"これもひらがなだけでかかれたにぎょうめのぶんしょうですよろしくおねがいします",
	)
	shard := testkit.WETShard(t, testkit.WETRecord{URI: "https://example.jp/a", Body: body})
	res, err := ports.Processor.Process(context.Background(), "crawl/x.warc.wet.gz", bytes.NewReader(shard))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Languages["ja"].Documents != 1 {
		t.Fatalf("languages = %+v rejected = %v", res.Languages, res.Rejected)
	}
	if _, err := os.Stat(filepath.Join(ports.Layout.LangDir("crawl/x.warc.wet.gz", "ja"), "_SUCCESS.json")); err != nil {
		t.Fatalf("marker: %v", err)
	}
}
