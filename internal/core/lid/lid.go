// Package lid classifies single lines of text by language.
// The model behind it is an Oracle: loaded once, read-only, shared by all workers
package lid

import (
	"strings"
	"unicode/utf8"
)

// Prediction is one ranked label from an oracle
type Prediction struct {
	Label string
	Prob  float64
}

// Oracle is a loaded language identification model
type Oracle interface {
	// Predict returns up to k predictions, most probable first
	Predict(text string, k int) []Prediction
}

// Reason explains an Unknown outcome
type Reason string

const (
	ReasonShort         Reason = "short"
	ReasonLowConfidence Reason = "low_confidence"
	ReasonNoPrediction  Reason = "no_prediction"
)

// Outcome is either Identified or Unknown
type Outcome interface{ isOutcome() }

// Identified carries the predicted language and its confidence
type Identified struct {
	Lang       string
	Confidence float64
}

// Unknown carries why no language was assigned
type Unknown struct {
	Reason Reason
}

func (Identified) isOutcome() {}
func (Unknown) isOutcome()    {}

// Options tune the classifier
type Options struct {
	// MinChars is the rune count below which a line is Unknown(short) without consulting the oracle
	MinChars int `json:"min_chars" validate:"gte=0"`
	// Threshold is the minimum top-1 probability for Identified
	Threshold float64 `json:"threshold" validate:"gte=0,lte=1"`
}

// DefaultOptions mirrors the k=1, 0.8 setup of the reference corpus
func DefaultOptions() Options { return Options{MinChars: 20, Threshold: 0.8} }

// Classifier wraps an Oracle with the length gate and the confidence threshold
type Classifier struct {
	oracle Oracle
	opt    Options
}

// New returns a Classifier over o
func New(o Oracle, opt Options) *Classifier {
	return &Classifier{oracle: o, opt: opt}
}

// Classify never fails; oracle misbehavior degrades to Unknown
func (c *Classifier) Classify(line string) Outcome {
	line = strings.TrimSpace(line)
	if line == "" || utf8.RuneCountInString(line) < c.opt.MinChars {
		return Unknown{Reason: ReasonShort}
	}
	preds := c.predict(line)
	if len(preds) == 0 {
		return Unknown{Reason: ReasonNoPrediction}
	}
	top := preds[0]
	lang := NormalizeLabel(top.Label)
	if lang == "" {
		return Unknown{Reason: ReasonNoPrediction}
	}
	if top.Prob < c.opt.Threshold {
		return Unknown{Reason: ReasonLowConfidence}
	}
	return Identified{Lang: lang, Confidence: top.Prob}
}

func (c *Classifier) predict(line string) (out []Prediction) {
	defer func() {
		if recover() != nil {
			out = nil
		}
	}()
	return c.oracle.Predict(line, 1)
}

// NormalizeLabel turns "__label__FR" or "fr_FR" style labels into lower-case tags ("fr", "fr-fr").
// Tags name output directories, so labels holding path characters normalize to ""
func NormalizeLabel(label string) string {
	label = strings.TrimPrefix(strings.TrimSpace(label), "__label__")
	if strings.ContainsAny(label, `/\.`) {
		return ""
	}
	label = strings.ReplaceAll(label, "_", "-")
	return strings.ToLower(label)
}
