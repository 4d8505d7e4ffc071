package testkit

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// WETRecord describes one conversion record for fixture shards
type WETRecord struct {
	URI  string
	ID   string // defaults to a synthetic urn:uuid
	Date string // defaults to a fixed timestamp
	Body string
}

// WETBytes renders records as uncompressed WARC/1.0 text, preceded by a warcinfo record
func WETBytes(recs ...WETRecord) []byte {
	var b bytes.Buffer
	writeWARC(&b, "warcinfo", map[string]string{
		"WARC-Record-ID": "<urn:uuid:00000000-0000-0000-0000-000000000000>",
		"Content-Type":   "application/warc-fields",
	}, "isPartOf: CC-MAIN-TEST\r\n")
	for i, r := range recs {
		writeWARC(&b, "conversion", recordHeaders(i, r), r.Body)
	}
	return b.Bytes()
}

// WETShard renders records as a multi-member gzip stream with one member per record,
// the way Common Crawl publishes WET files
func WETShard(t *testing.T, recs ...WETRecord) []byte {
	t.Helper()
	var out bytes.Buffer
	member := func(p []byte) {
		zw := gzip.NewWriter(&out)
		if _, err := zw.Write(p); err != nil {
			t.Fatalf("gzip write: %v", err)
		}
		if err := zw.Close(); err != nil {
			t.Fatalf("gzip close: %v", err)
		}
	}
	var info bytes.Buffer
	writeWARC(&info, "warcinfo", map[string]string{
		"WARC-Record-ID": "<urn:uuid:00000000-0000-0000-0000-000000000000>",
		"Content-Type":   "application/warc-fields",
	}, "isPartOf: CC-MAIN-TEST\r\n")
	member(info.Bytes())
	for i, r := range recs {
		var b bytes.Buffer
		writeWARC(&b, "conversion", recordHeaders(i, r), r.Body)
		member(b.Bytes())
	}
	return out.Bytes()
}

// Gzip compresses p as a single member
func Gzip(t *testing.T, p []byte) []byte {
	t.Helper()
	var out bytes.Buffer
	zw := gzip.NewWriter(&out)
	if _, err := zw.Write(p); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return out.Bytes()
}

// Lines joins lines with a newline, the paragraph separator in WET bodies
func Lines(ls ...string) string { return strings.Join(ls, "\n") }

func recordHeaders(i int, r WETRecord) map[string]string {
	id := r.ID
	if id == "" {
		id = fmt.Sprintf("<urn:uuid:00000000-0000-0000-0000-%012d>", i+1)
	}
	date := r.Date
	if date == "" {
		date = "2023-01-26T21:12:35Z"
	}
	return map[string]string{
		"WARC-Target-URI": r.URI,
		"WARC-Date":       date,
		"WARC-Record-ID":  id,
		"Content-Type":    "text/plain",
	}
}

func writeWARC(b *bytes.Buffer, typ string, h map[string]string, body string) {
	b.WriteString("WARC/1.0\r\n")
	b.WriteString("WARC-Type: " + typ + "\r\n")
	for _, k := range []string{"WARC-Target-URI", "WARC-Date", "WARC-Record-ID", "Content-Type"} {
		if v, ok := h[k]; ok {
			b.WriteString(k + ": " + v + "\r\n")
		}
	}
	fmt.Fprintf(b, "Content-Length: %d\r\n\r\n", len(body))
	b.WriteString(body)
	b.WriteString("\r\n\r\n")
}
