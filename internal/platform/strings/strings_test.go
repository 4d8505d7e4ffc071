package strings

import (
	"slices"
	"testing"

	"github.com/oscar-project/ungoliant/internal/platform/testkit"
)

func TestNaturalOrder(t *testing.T) {
	in := []string{
		"shard-10.txt.gz",
		"shard-9.txt.gz",
		"shard-100.txt.gz",
		"shard-09.txt.gz",
		"shard-1.txt.gz",
		"other",
	}
	slices.SortFunc(in, NaturalCompare)
	want := []string{
		"other",
		"shard-1.txt.gz",
		"shard-09.txt.gz",
		"shard-9.txt.gz",
		"shard-10.txt.gz",
		"shard-100.txt.gz",
	}
	if !slices.Equal(in, want) {
		t.Fatalf("order = %v\nwant    %v", in, want)
	}
	if !NaturalLess("a2", "a10") || NaturalLess("a10", "a2") || NaturalLess("x", "x") {
		t.Fatalf("NaturalLess basics")
	}
	if !NaturalLess("a", "a1") {
		t.Fatalf("prefix should sort first")
	}
}

func TestHelpers(t *testing.T) {
	if got := IfEmpty(nil, []string{"GET"}); len(got) != 1 {
		t.Fatalf("IfEmpty default")
	}
	if SQLNull("  ") != nil || SQLNull("x") != "x" {
		t.Fatalf("SQLNull")
	}
	if MustPrefix(" v1/ ") != "/v1" {
		t.Fatalf("MustPrefix")
	}
	testkit.MustPanic(t, func() { MustPrefix("/") })
}
