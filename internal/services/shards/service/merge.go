package service

import (
	"strings"
	"unicode/utf8"

	"github.com/oscar-project/ungoliant/internal/core/lid"
)

// line is one retained body line with its classification
type line struct {
	no   int
	text string
	lang string // empty when unknown
	conf float64
}

// run is a maximal span of adjacent lines sharing a language, possibly with absorbed minority lines
type run struct {
	lang     string
	lines    []line
	absorbed int
}

// Absorb bounds the minority runs merged into a surrounding language
type Absorb struct {
	MaxLines int // a run with more lines is never absorbed
	MaxChars int // every absorbed line must be shorter than this, in runes
}

// splitLines trims body lines and drops blanks and lines under minChars runes
func splitLines(body string, minChars int) []line {
	var out []line
	for i, raw := range strings.Split(body, "\n") {
		t := strings.TrimSpace(raw)
		if t == "" || utf8.RuneCountInString(t) < minChars {
			continue
		}
		out = append(out, line{no: i, text: t})
	}
	return out
}

// classify fills lang and conf for every line
func classify(c *lid.Classifier, lines []line) {
	for i := range lines {
		if id, ok := c.Classify(lines[i].text).(lid.Identified); ok {
			lines[i].lang, lines[i].conf = id.Lang, id.Confidence
		}
	}
}

// group forms runs and absorbs short minority runs sandwiched between two runs of
// the same language. Unknown runs that stay on their own are dropped
func group(lines []line, a Absorb) []run {
	var stack []run
	for _, ln := range lines {
		if n := len(stack); n > 0 && stack[n-1].lang == ln.lang {
			stack[n-1].lines = append(stack[n-1].lines, ln)
			continue
		}
		stack = pushRun(stack, run{lang: ln.lang, lines: []line{ln}}, a)
	}
	out := stack[:0]
	for _, r := range stack {
		if r.lang != "" {
			out = append(out, r)
		}
	}
	return out
}

// pushRun appends r; when r continues the language two runs back across a small
// minority run, the three are fused into one
func pushRun(stack []run, r run, a Absorb) []run {
	n := len(stack)
	if n >= 2 && r.lang != "" && stack[n-2].lang == r.lang && absorbable(stack[n-1], a) {
		keep := &stack[n-2]
		minority := stack[n-1]
		keep.lines = append(keep.lines, minority.lines...)
		keep.lines = append(keep.lines, r.lines...)
		keep.absorbed += len(minority.lines) + r.absorbed
		return stack[:n-1]
	}
	// a run that merely continues its neighbour's language extends it
	if n >= 1 && stack[n-1].lang == r.lang {
		stack[n-1].lines = append(stack[n-1].lines, r.lines...)
		stack[n-1].absorbed += r.absorbed
		return stack
	}
	return append(stack, r)
}

func absorbable(r run, a Absorb) bool {
	if len(r.lines) > a.MaxLines {
		return false
	}
	for _, ln := range r.lines {
		if utf8.RuneCountInString(ln.text) >= a.MaxChars {
			return false
		}
	}
	return true
}
