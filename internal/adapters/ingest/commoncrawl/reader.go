package commoncrawl

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	perr "github.com/oscar-project/ungoliant/internal/platform/errors"

	"github.com/klauspost/compress/gzip"
)

// Header names used by WET records
const (
	HeaderType          = "WARC-Type"
	HeaderTargetURI     = "WARC-Target-URI"
	HeaderRecordID      = "WARC-Record-ID"
	HeaderDate          = "WARC-Date"
	HeaderContentLength = "Content-Length"

	typeConversion = "conversion"
	warcMagic      = "WARC/"
	maxHeaderLine  = 64 * 1024
	maxBodyBytes   = 64 * 1024 * 1024
)

// Record is one conversion record
type Record struct {
	// Index is the record's position in the shard, warcinfo included
	Index    int
	URL      string
	RecordID string
	Date     string
	Headers  map[string]string
	Body     string
}

// Reader yields conversion records from a WET stream
type Reader struct {
	br        *bufio.Reader
	closer    io.Closer
	seen      int
	complete  int
	malformed int
	truncated bool
	done      bool
}

// NewReader opens a WET stream. Streams starting with a WARC version line are read as is,
// anything else must be gzip; a bad gzip header is a decompression error
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReaderSize(r, 256*1024)
	if head, _ := br.Peek(len(warcMagic)); string(head) == warcMagic {
		return &Reader{br: br}, nil
	}
	zr, err := gzip.NewReader(br)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeDecompress, "open wet stream")
	}
	return &Reader{br: bufio.NewReaderSize(zr, 256*1024), closer: zr}, nil
}

// Malformed is the number of records skipped so far
func (rd *Reader) Malformed() int { return rd.malformed }

// Truncated reports whether the stream ended inside a record or failed to decompress mid-way
func (rd *Reader) Truncated() bool { return rd.truncated }

// Close releases the decompressor; it does not close the underlying reader
func (rd *Reader) Close() error {
	if rd.closer == nil {
		return nil
	}
	return rd.closer.Close()
}

// Next returns the next conversion record or io.EOF.
// Malformed records are counted and skipped. An error is returned only when the
// first record cannot be read, which means the shard itself is unusable
func (rd *Reader) Next() (Record, error) {
	for !rd.done {
		rec, ok, err := rd.next()
		if err != nil {
			rd.done = true
			return Record{}, err
		}
		if ok {
			return rec, nil
		}
	}
	return Record{}, io.EOF
}

// next reads one record; ok is false for skipped records and at end of stream
func (rd *Reader) next() (Record, bool, error) {
	line, err := rd.skipBlank()
	if err != nil {
		return Record{}, false, rd.fail(err, perr.ErrorCodeDecompress, "read record")
	}
	if rd.done {
		return Record{}, false, nil
	}
	if !strings.HasPrefix(line, "WARC/") {
		if rd.complete == 0 {
			return Record{}, false, perr.Newf(perr.ErrorCodeParse, "wet stream does not start with a WARC record (%.32q)", line)
		}
		rd.malformed++
		rd.resync()
		return Record{}, false, nil
	}
	index := rd.seen
	rd.seen++

	headers, err := rd.readHeaders()
	if err != nil {
		return Record{}, false, rd.fail(err, perr.ErrorCodeParse, "read record headers")
	}
	n, err := strconv.Atoi(headers[HeaderContentLength])
	if err != nil || n < 0 || n > maxBodyBytes {
		if rd.complete == 0 {
			return Record{}, false, perr.Newf(perr.ErrorCodeParse, "first record has bad Content-Length %q", headers[HeaderContentLength])
		}
		rd.malformed++
		rd.resync()
		return Record{}, false, nil
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(rd.br, body); err != nil {
		return Record{}, false, rd.fail(err, perr.ErrorCodeDecompress, "read record body")
	}
	rd.complete++

	if headers[HeaderType] != typeConversion {
		return Record{}, false, nil
	}
	if !utf8.Valid(body) {
		rd.malformed++
		return Record{}, false, nil
	}
	return Record{
		Index:    index,
		URL:      headers[HeaderTargetURI],
		RecordID: headers[HeaderRecordID],
		Date:     headers[HeaderDate],
		Headers:  headers,
		Body:     string(body),
	}, true, nil
}

// fail classifies a read error: before the first complete record it is fatal for the
// shard, afterwards the partial record counts as malformed and the stream ends
func (rd *Reader) fail(err error, code perr.ErrorCode, msg string) error {
	if rd.complete == 0 {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			code = perr.ErrorCodeParse
		}
		return perr.Wrap(err, code, msg)
	}
	rd.malformed++
	rd.truncated = true
	rd.done = true
	return nil
}

// skipBlank returns the next non-blank line; at a clean end of stream it sets done
func (rd *Reader) skipBlank() (string, error) {
	for {
		line, err := rd.readLine()
		if err == io.EOF {
			rd.done = true
			return "", nil
		}
		if err != nil {
			return "", err
		}
		if line != "" {
			return line, nil
		}
	}
}

func (rd *Reader) readHeaders() (map[string]string, error) {
	h := map[string]string{}
	for {
		line, err := rd.readLine()
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		if err != nil {
			return nil, err
		}
		if line == "" {
			return h, nil
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			h[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
}

// resync drops lines until the next WARC version line, leaving it unread
func (rd *Reader) resync() {
	for {
		peek, err := rd.br.Peek(5)
		if err != nil {
			if len(peek) == 0 || !errors.Is(err, io.EOF) {
				rd.done = true
				return
			}
		}
		if string(peek) == "WARC/" {
			return
		}
		if _, err := rd.readLine(); err != nil {
			rd.done = true
			return
		}
	}
}

// readLine reads one line without its line ending; io.EOF comes only with an empty line
func (rd *Reader) readLine() (string, error) {
	var sb strings.Builder
	for {
		frag, isPrefix, err := rd.br.ReadLine()
		if err != nil {
			return "", err
		}
		sb.Write(frag)
		if sb.Len() > maxHeaderLine {
			return "", perr.New(perr.ErrorCodeParse, "line too long")
		}
		if !isPrefix {
			return sb.String(), nil
		}
	}
}
