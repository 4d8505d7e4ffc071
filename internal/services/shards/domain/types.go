// Package domain defines the documents, results and ports of the shard processor
package domain

import (
	"context"
	"io"
	"time"
)

// Document is one language-homogeneous run of lines from a single record, or a whole
// record under the multi tag when its languages are mixed evenly enough
type Document struct {
	ID            string            `json:"id"`
	Shard         string            `json:"shard"`
	RecordID      string            `json:"record_id"`
	RecordIndex   int               `json:"record_index"`
	URL           string            `json:"url"`
	Lang          string            `json:"lang"`
	Text          string            `json:"text"`
	Bytes         int               `json:"bytes"`
	LineStart     int               `json:"line_start"` // first body line, 0-based
	LineEnd       int               `json:"line_end"`   // last body line, inclusive
	Confidence    Confidence        `json:"confidence"`
	AbsorbedLines int               `json:"absorbed_lines,omitempty"`
	Quality       *float64          `json:"quality,omitempty"`
	Annotations   []string          `json:"annotations,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`

	// LSH is the TLSH digest of Text, empty when the text cannot be hashed
	LSH string `json:"lsh,omitempty"`
	// LineLangs holds each line's language for multi documents, "" for unknown lines
	LineLangs []string `json:"line_langs,omitempty"`
}

// Confidence summarizes the classifier confidence of the document's own lines
type Confidence struct {
	Min  float64 `json:"min"`
	Mean float64 `json:"mean"`
	Max  float64 `json:"max"`
}

// LangStats counts one language's output in a shard
type LangStats struct {
	Documents int64 `json:"documents"`
	Bytes     int64 `json:"bytes"`
	Parts     int   `json:"parts"`
}

// Result is what processing one shard produced
type Result struct {
	Shard     string               `json:"shard"`
	Records   int64                `json:"records"`
	Malformed int64                `json:"malformed"`
	Truncated bool                 `json:"truncated,omitempty"`
	Languages map[string]LangStats `json:"languages"`
	Rejected  map[string]int64     `json:"rejected,omitempty"` // by reason
	Elapsed   time.Duration        `json:"elapsed"`

	// RejectedByLang counts the same rejections by document language
	RejectedByLang map[string]int64 `json:"rejected_by_lang,omitempty"`
}

// Documents sums documents over languages
func (r Result) Documents() int64 {
	var n int64
	for _, l := range r.Languages {
		n += l.Documents
	}
	return n
}

// RejectedTotal sums rejections over reasons
func (r Result) RejectedTotal() int64 {
	var n int64
	for _, v := range r.Rejected {
		n += v
	}
	return n
}

// ProcessorPort turns one raw shard stream into its intermediate output set
type ProcessorPort interface {
	Process(ctx context.Context, shardID string, r io.Reader) (Result, error)
}
