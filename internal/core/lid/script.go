package lid

import "github.com/oscar-project/ungoliant/internal/core/langhint"

// ScriptOracle labels text whose script pins down a single language (ja, ko, ar, he, th, el, ka, hy).
// It serves development runs and tests when no trained model is configured
type ScriptOracle struct{}

// Predict returns at most one prediction with the script share as probability
func (ScriptOracle) Predict(text string, k int) []Prediction {
	if k <= 0 {
		return nil
	}
	h := langhint.Detect(text)
	if h.Lang == "" {
		return nil
	}
	return []Prediction{{Label: h.Lang, Prob: h.Share}}
}

// Chain asks each oracle in turn and returns the first non-empty answer
type Chain []Oracle

// Predict implements Oracle
func (c Chain) Predict(text string, k int) []Prediction {
	for _, o := range c {
		if p := o.Predict(text, k); len(p) > 0 {
			return p
		}
	}
	return nil
}
