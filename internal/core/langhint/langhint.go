// Package langhint provides script detection and the languages a script pins down on its own
package langhint

import (
	"unicode"
)

// Hint is the outcome of a script scan
type Hint struct {
	// Script is the predominant script name, empty when s has no letters
	Script string
	// Lang is set only when the script maps to a single language and there are enough letters
	Lang string
	// Share is the fraction of letters in the predominant script
	Share float64
	// Letters counts letter runes seen
	Letters int
}

// MinLetters is the letter count below which Lang stays empty
const MinLetters = 20

type script struct {
	name  string
	table *unicode.RangeTable
	lang  string
}

// order matters: kana before Han so Japanese text is not read as Chinese
var scripts = []script{
	{"Hiragana", unicode.Hiragana, "ja"},
	{"Katakana", unicode.Katakana, "ja"},
	{"Hangul", unicode.Hangul, "ko"},
	{"Han", unicode.Han, ""},
	{"Arabic", unicode.Arabic, "ar"},
	{"Hebrew", unicode.Hebrew, "he"},
	{"Thai", unicode.Thai, "th"},
	{"Greek", unicode.Greek, "el"},
	{"Georgian", unicode.Georgian, "ka"},
	{"Armenian", unicode.Armenian, "hy"},
	{"Cyrillic", unicode.Cyrillic, ""},
	{"Devanagari", unicode.Devanagari, ""},
	{"Latin", unicode.Latin, ""},
}

// Detect scans s once and reports the predominant script and, when unambiguous, its language
func Detect(s string) Hint {
	counts := make([]int, len(scripts))
	total := 0
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		total++
		for i := range scripts {
			if unicode.Is(scripts[i].table, r) {
				counts[i]++
				break
			}
		}
	}
	if total == 0 {
		return Hint{}
	}

	best := -1
	for i, c := range counts {
		if c > 0 && (best < 0 || c > counts[best]) {
			best = i
		}
	}
	h := Hint{Letters: total}
	if best < 0 {
		return h
	}
	h.Script = scripts[best].name
	h.Share = float64(counts[best]) / float64(total)

	if total < MinLetters {
		return h
	}
	// any kana at all is decisive for Japanese, even when Han dominates
	if counts[0] > 0 || counts[1] > 0 {
		h.Lang = "ja"
		return h
	}
	h.Lang = scripts[best].lang
	return h
}
