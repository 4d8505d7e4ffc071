package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"trace":   "trace",
		"DEBUG":   "debug",
		"":        "info",
		"warning": "warn",
		"error":   "error",
		"off":     "disabled",
		"bogus":   "info",
	}
	for in, want := range cases {
		if got := parseLevel(in).String(); got != want {
			t.Fatalf("parseLevel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNew_JSONFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{
		Level:        "warn",
		Format:       "json",
		Service:      "ungoliant-test",
		Writer:       &buf,
		StaticFields: map[string]string{"build": "t"},
	})

	l.Info().Msg("dropped")
	l.Warn().Str("k", "v").Msg("kept")

	out := strings.TrimSpace(buf.String())
	if strings.Contains(out, "dropped") {
		t.Fatalf("info line should be filtered at warn level: %s", out)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("expected one json line, got %q: %v", out, err)
	}
	for k, want := range map[string]string{"service": "ungoliant-test", "build": "t", "k": "v", "message": "kept"} {
		if m[k] != want {
			t.Fatalf("field %s = %v, want %q", k, m[k], want)
		}
	}
}

func TestContextFields(t *testing.T) {
	ctx := WithShard(WithRun(context.Background(), "run-1"), "00042")
	if RunID(ctx) != "run-1" {
		t.Fatalf("RunID = %q", RunID(ctx))
	}
	// empty ids leave ctx untouched
	if WithRun(ctx, "") != ctx || WithShard(ctx, "") != ctx {
		t.Fatalf("empty ids should return ctx unchanged")
	}
	if C(ctx) == nil || Named("x") == nil || Named("") != Get() {
		t.Fatalf("child loggers should be non-nil and Named(\"\") should be root")
	}
}
