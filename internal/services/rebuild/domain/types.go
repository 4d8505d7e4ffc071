// Package domain defines the final corpus manifest, post-filters and ports of the assembler
package domain

import (
	"context"
	"slices"

	shdom "github.com/oscar-project/ungoliant/internal/services/shards/domain"
)

// Manifest describes one final corpus; it is written next to the corpus stream
type Manifest struct {
	Lang        string           `json:"lang"`
	File        string           `json:"file"`
	Codec       string           `json:"codec"`
	Documents   int64            `json:"documents"`
	TextBytes   int64            `json:"text_bytes"`
	StreamBytes int64            `json:"stream_bytes"` // uncompressed jsonl bytes
	Size        int64            `json:"size"`         // compressed bytes on disk
	Duplicates  int64            `json:"duplicates"`
	NearDups    int64            `json:"near_duplicates,omitempty"` // kept, but close to a recent document
	Filtered    map[string]int64 `json:"filtered,omitempty"`
	Shards      int              `json:"shards"`
	Digest      string           `json:"digest"` // sha256:<hex> over the uncompressed stream
	Filters     Filters          `json:"filters"`
}

// FilteredTotal sums post-filter drops
func (m Manifest) FilteredTotal() int64 {
	var n int64
	for _, v := range m.Filtered {
		n += v
	}
	return n
}

// Filters are pure post-filters over stored document fields; no re-classification
type Filters struct {
	MinScore        *float64 `json:"min_score,omitempty"`
	MaxScore        *float64 `json:"max_score,omitempty"`
	DropAnnotations []string `json:"drop_annotations,omitempty"`
	MinBytes        int      `json:"min_bytes,omitempty"`
}

// Reject returns the reason d is filtered out, or "" to keep it.
// Documents without a stored score pass the score bounds
func (f Filters) Reject(d shdom.Document) string {
	if f.MinBytes > 0 && d.Bytes < f.MinBytes {
		return "min_bytes"
	}
	if d.Quality != nil {
		if f.MinScore != nil && *d.Quality < *f.MinScore {
			return "min_score"
		}
		if f.MaxScore != nil && *d.Quality > *f.MaxScore {
			return "max_score"
		}
	}
	for _, a := range d.Annotations {
		if slices.Contains(f.DropAnnotations, a) {
			return "annotation:" + a
		}
	}
	return ""
}

// AssemblerPort builds final corpora from done shards
type AssemblerPort interface {
	Rebuild(ctx context.Context, lang string) (Manifest, error)
	RebuildAll(ctx context.Context) ([]Manifest, error)
}

// Reporter is told about every corpus built; it must not fail the rebuild
type Reporter interface {
	Rebuilt(ctx context.Context, m Manifest)
}
