package quality

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Annotation names stored on documents; sorted order is the emitted order
const (
	AnnotationFooter = "footer"
	AnnotationHeader = "header"
	AnnotationNoisy  = "noisy"
	AnnotationTiny   = "tiny"
)

// Heuristics holds the thresholds of the annotators
type Heuristics struct {
	// TinyLines marks documents with fewer lines as tiny
	TinyLines int `json:"tiny_lines" validate:"gte=0"`
	// NoisyRatio marks documents whose non-letter share exceeds it as noisy
	NoisyRatio float64 `json:"noisy_ratio" validate:"gte=0,lte=1"`
	// EdgeShare is the share of lines considered header or footer
	EdgeShare float64 `json:"edge_share" validate:"gte=0,lte=1"`
	// EdgeShortShare is the share of short lines within the edge that triggers the annotation
	EdgeShortShare float64 `json:"edge_short_share" validate:"gte=0,lte=1"`
	// ShortLineChars is the rune length under which a line is short
	ShortLineChars int `json:"short_line_chars" validate:"gte=0"`
}

// DefaultHeuristics are the thresholds used by the reference corpus
func DefaultHeuristics() Heuristics {
	return Heuristics{TinyLines: 5, NoisyRatio: 0.5, EdgeShare: 0.2, EdgeShortShare: 0.5, ShortLineChars: 100}
}

// Annotate returns the annotations that apply to text, sorted
func (h Heuristics) Annotate(text string) []string {
	lines := strings.Split(text, "\n")
	var out []string

	edge := int(math.Floor(float64(len(lines)) * h.EdgeShare))
	limit := int(math.Floor(float64(edge) * h.EdgeShortShare))
	if edge > 0 {
		if h.countShort(lines[len(lines)-edge:]) > limit {
			out = append(out, AnnotationFooter)
		}
		if h.countShort(lines[:edge]) > limit {
			out = append(out, AnnotationHeader)
		}
	}
	if h.noisy(text) {
		out = append(out, AnnotationNoisy)
	}
	if len(lines) < h.TinyLines {
		out = append(out, AnnotationTiny)
	}
	return out
}

func (h Heuristics) countShort(lines []string) int {
	n := 0
	for _, l := range lines {
		if utf8.RuneCountInString(l) < h.ShortLineChars {
			n++
		}
	}
	return n
}

// noisy counts every non-letter rune, whitespace included
func (h Heuristics) noisy(text string) bool {
	total := utf8.RuneCountInString(text)
	if total == 0 {
		return false
	}
	limit := int(math.Floor(float64(total) * h.NoisyRatio))
	other := 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			other++
		}
	}
	return other > limit
}
