// Package codec wraps the stream compressors used for intermediate parts and final corpora.
// Writers are configured for byte-identical output across runs
package codec

import (
	"io"
	"strings"

	perr "github.com/oscar-project/ungoliant/internal/platform/errors"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec names a stream compression
type Codec string

const (
	Gzip Codec = "gzip"
	Zstd Codec = "zstd"
	None Codec = "none"
)

// Parse accepts gzip|gz, zstd|zst and none|plain (case insensitive)
func Parse(s string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gzip", "gz", "":
		return Gzip, nil
	case "zstd", "zst":
		return Zstd, nil
	case "none", "plain":
		return None, nil
	}
	return "", perr.Configf("unknown codec %q (gzip|zstd|none)", s)
}

// Ext is the filename suffix including the dot, empty for None
func (c Codec) Ext() string {
	switch c {
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	}
	return ""
}

// FromPath guesses the codec from a filename suffix
func FromPath(p string) Codec {
	switch {
	case strings.HasSuffix(p, ".gz"):
		return Gzip
	case strings.HasSuffix(p, ".zst"):
		return Zstd
	}
	return None
}

// NewWriter wraps w; Close flushes the frame but does not close w
func (c Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case Gzip:
		return gzip.NewWriterLevel(w, gzip.DefaultCompression)
	case Zstd:
		return zstd.NewWriter(w,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1),
			zstd.WithEncoderCRC(true),
		)
	case None:
		return nopWriteCloser{w}, nil
	}
	return nil, perr.Configf("unknown codec %q", string(c))
}

// NewReader wraps r; gzip readers accept multi-member streams
func (c Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeDecompress, "gzip header")
		}
		return zr, nil
	case Zstd:
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeDecompress, "zstd header")
		}
		return zr.IOReadCloser(), nil
	case None:
		return io.NopCloser(r), nil
	}
	return nil, perr.Configf("unknown codec %q", string(c))
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
