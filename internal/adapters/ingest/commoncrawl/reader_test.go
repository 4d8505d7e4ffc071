package commoncrawl

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/platform/testkit"
)

func readAll(t *testing.T, rd *Reader) []Record {
	t.Helper()
	var out []Record
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, rec)
	}
}

func TestReader_MultiMemberShard(t *testing.T) {
	shard := testkit.WETShard(t,
		testkit.WETRecord{URI: "https://a.example/", Body: testkit.Lines("première ligne", "", "deuxième ligne")},
		testkit.WETRecord{URI: "https://b.example/", ID: "<urn:uuid:b>", Body: "only line"},
	)
	rd, err := NewReader(bytes.NewReader(shard))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer rd.Close()

	recs := readAll(t, rd)
	if len(recs) != 2 {
		t.Fatalf("records = %d", len(recs))
	}
	if recs[0].Index != 1 || recs[1].Index != 2 {
		t.Fatalf("indices = %d,%d (warcinfo is 0)", recs[0].Index, recs[1].Index)
	}
	if recs[0].URL != "https://a.example/" || recs[0].Body != "première ligne\n\ndeuxième ligne" {
		t.Fatalf("record 0 = %+v", recs[0])
	}
	if recs[1].RecordID != "<urn:uuid:b>" || recs[1].Date != "2023-01-26T21:12:35Z" {
		t.Fatalf("record 1 = %+v", recs[1])
	}
	if recs[1].Headers["Content-Type"] != "text/plain" {
		t.Fatalf("headers = %v", recs[1].Headers)
	}
	if rd.Malformed() != 0 || rd.Truncated() {
		t.Fatalf("malformed=%d truncated=%v", rd.Malformed(), rd.Truncated())
	}
	// stays at EOF
	if _, err := rd.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("second EOF = %v", err)
	}
}

func TestReader_InvalidUTF8IsMalformed(t *testing.T) {
	shard := testkit.WETShard(t,
		testkit.WETRecord{URI: "https://a.example/", Body: "bad \xff\xfe body"},
		testkit.WETRecord{URI: "https://b.example/", Body: "good body"},
	)
	rd, err := NewReader(bytes.NewReader(shard))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	recs := readAll(t, rd)
	if len(recs) != 1 || recs[0].URL != "https://b.example/" || rd.Malformed() != 1 {
		t.Fatalf("records=%+v malformed=%d", recs, rd.Malformed())
	}
}

func TestReader_BadContentLengthResyncs(t *testing.T) {
	good := testkit.WETBytes(testkit.WETRecord{URI: "https://a.example/", Body: "first body"})
	bad := "WARC/1.0\r\nWARC-Type: conversion\r\nContent-Length: lots\r\n\r\nsome body\r\nmore body\r\n\r\n"
	tail := "WARC/1.0\r\nWARC-Type: conversion\r\nWARC-Target-URI: https://c.example/\r\nContent-Length: 9\r\n\r\nlast body\r\n\r\n"

	rd, err := NewReader(strings.NewReader(string(good) + bad + tail))
	if err != nil {
		t.Fatalf("plain stream: %v", err)
	}
	recs := readAll(t, rd)
	if len(recs) != 2 || recs[1].URL != "https://c.example/" || recs[1].Body != "last body" {
		t.Fatalf("records = %+v", recs)
	}
	if rd.Malformed() != 1 || rd.Truncated() {
		t.Fatalf("malformed=%d truncated=%v", rd.Malformed(), rd.Truncated())
	}
}

func TestReader_TruncatedStream(t *testing.T) {
	a := testkit.WETRecord{URI: "https://a.example/", Body: strings.Repeat("alpha beta gamma ", 50)}
	b := testkit.WETRecord{URI: "https://b.example/", Body: strings.Repeat("delta epsilon ", 50)}
	c := testkit.WETRecord{URI: "https://c.example/", Body: strings.Repeat("zeta eta theta ", 400)}
	two := testkit.WETShard(t, a, b)
	full := testkit.WETShard(t, a, b, c)
	if !bytes.HasPrefix(full, two) {
		t.Fatalf("fixture shards should share a prefix")
	}
	cut := full[:len(two)+(len(full)-len(two))/2]

	rd, err := NewReader(bytes.NewReader(cut))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	recs := readAll(t, rd)
	if len(recs) != 2 {
		t.Fatalf("records = %d", len(recs))
	}
	if rd.Malformed() != 1 || !rd.Truncated() {
		t.Fatalf("malformed=%d truncated=%v", rd.Malformed(), rd.Truncated())
	}
}

func TestReader_ShardLevelErrors(t *testing.T) {
	if _, err := NewReader(strings.NewReader("definitely not gzip")); !perr.IsCode(err, perr.ErrorCodeDecompress) {
		t.Fatalf("bad gzip err = %v", err)
	}

	rd, err := NewReader(bytes.NewReader(testkit.Gzip(t, []byte("<html>not a warc</html>\r\n"))))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, err := rd.Next(); !perr.IsCode(err, perr.ErrorCodeParse) {
		t.Fatalf("non warc err = %v", err)
	}
	if _, err := rd.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("after a shard error the reader is done, got %v", err)
	}

	// first record cut short
	full := testkit.WETBytes()
	if rd, err = NewReader(bytes.NewReader(full[:len(full)/2])); err != nil {
		t.Fatalf("plain stream: %v", err)
	}
	if _, err := rd.Next(); !perr.IsCode(err, perr.ErrorCodeParse) {
		t.Fatalf("short first record err = %v", err)
	}
}

func TestReader_EmptyStream(t *testing.T) {
	rd, err := NewReader(bytes.NewReader(testkit.Gzip(t, nil)))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if recs := readAll(t, rd); len(recs) != 0 {
		t.Fatalf("records = %d", len(recs))
	}
}
