// Package lsh computes TLSH locality sensitive digests of document text and
// finds near duplicates among recent digests
package lsh

import (
	"github.com/glaslos/tlsh"
)

// Digest returns the hex TLSH digest of text, or "" when the hasher refuses it
// (too short, or too little variation)
func Digest(text string) string {
	h, err := tlsh.HashBytes([]byte(text))
	if err != nil || h == nil {
		return ""
	}
	return h.String()
}

// Distance is the TLSH difference score of two digests; 0 means identical.
// ok is false when either digest does not parse
func Distance(a, b string) (int, bool) {
	ha, err := tlsh.ParseStringToTlsh(a)
	if err != nil {
		return 0, false
	}
	hb, err := tlsh.ParseStringToTlsh(b)
	if err != nil {
		return 0, false
	}
	return ha.Diff(hb), true
}

// Window remembers the most recent digests and matches new ones against them.
// It is not safe for concurrent use
type Window struct {
	max    int
	size   int
	hashes []*tlsh.TLSH
	next   int
}

// NewWindow keeps up to size digests; maxDistance is the largest score counted as near
func NewWindow(size, maxDistance int) *Window {
	if size <= 0 {
		size = 1
	}
	return &Window{max: maxDistance, size: size, hashes: make([]*tlsh.TLSH, 0, size)}
}

// Add reports whether digest is within the distance of a remembered one, then remembers it.
// Empty or unparsable digests are never near anything and are not kept
func (w *Window) Add(digest string) bool {
	if digest == "" {
		return false
	}
	h, err := tlsh.ParseStringToTlsh(digest)
	if err != nil {
		return false
	}
	near := false
	for _, o := range w.hashes {
		if o.Diff(h) <= w.max {
			near = true
			break
		}
	}
	if len(w.hashes) < w.size {
		w.hashes = append(w.hashes, h)
	} else {
		w.hashes[w.next] = h
		w.next = (w.next + 1) % w.size
	}
	return near
}
