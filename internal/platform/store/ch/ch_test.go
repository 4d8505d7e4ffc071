package ch

import (
	"context"
	"testing"
)

func TestOpen_RejectsEmptyAndBadDSN(t *testing.T) {
	if _, err := Open(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for empty url")
	}
	if _, err := Open(context.Background(), Config{URL: "clickhouse://host:notaport/db"}); err == nil {
		t.Fatalf("expected error for bad dsn")
	}
}

func TestInsert_EmptyIsNoop(t *testing.T) {
	c := &CH{}
	if err := c.Insert(context.Background(), "shard_stats", nil); err != nil {
		t.Fatalf("empty insert should not touch the connection: %v", err)
	}
}

func TestClose_NilSafe(t *testing.T) {
	var c *CH
	if err := c.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}

func TestBuildClientInfo(t *testing.T) {
	ci := BuildClientInfo("pipeline", "")
	if len(ci.Products) != 5 {
		t.Fatalf("products = %d", len(ci.Products))
	}
	if ci.Products[0].Name != "ungoliant" || ci.Products[0].Version != "unknown" {
		t.Fatalf("empty tag should render unknown: %+v", ci.Products[0])
	}
	if ci.Products[1].Version != "pipeline" {
		t.Fatalf("role = %q", ci.Products[1].Version)
	}
}
