package output

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oscar-project/ungoliant/internal/platform/atomicfs"
	"github.com/oscar-project/ungoliant/internal/platform/codec"
	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/services/shards/domain"
)

// Options control part splitting and compression
type Options struct {
	Codec codec.Codec
	// SplitBytes flushes a language buffer once it holds this many uncompressed bytes
	SplitBytes int64
	// SplitDocs flushes after this many documents; 0 means no limit
	SplitDocs int
}

// ShardWriter buffers documents per language and publishes the shard atomically on Commit
type ShardWriter struct {
	layout  Layout
	shardID string
	staged  string
	opt     Options
	langs   map[string]*langWriter
	closed  bool
}

type langWriter struct {
	dir   string
	lang  string
	buf   bytes.Buffer
	docs  int64
	text  int64
	parts []Part
}

// NewShardWriter starts a fresh staging directory, discarding leftovers of a crashed attempt
func NewShardWriter(l Layout, shardID string, opt Options) (*ShardWriter, error) {
	if opt.Codec == "" {
		opt.Codec = codec.Gzip
	}
	staged := l.StagingDir(shardID)
	if err := os.RemoveAll(staged); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeIO, "clear staging %s", staged)
	}
	if err := os.MkdirAll(staged, 0o755); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeIO, "create staging %s", staged)
	}
	return &ShardWriter{layout: l, shardID: shardID, staged: staged, opt: opt, langs: map[string]*langWriter{}}, nil
}

// Append buffers d and flushes its language when a split threshold is reached
func (w *ShardWriter) Append(d domain.Document) error {
	if w.closed {
		return perr.New(perr.ErrorCodeIO, "append after close")
	}
	lw, ok := w.langs[d.Lang]
	if !ok {
		if d.Lang == "" || strings.ContainsAny(d.Lang, `/\.`) {
			return perr.Newf(perr.ErrorCodeInvalidArgument, "language %q cannot name a directory", d.Lang)
		}
		lw = &langWriter{dir: filepath.Join(w.staged, d.Lang), lang: d.Lang}
		if err := os.MkdirAll(lw.dir, 0o755); err != nil {
			return perr.Wrapf(err, perr.ErrorCodeIO, "create %s", lw.dir)
		}
		w.langs[d.Lang] = lw
	}
	b, err := json.Marshal(d)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeIO, "encode document")
	}
	lw.buf.Write(b)
	lw.buf.WriteByte('\n')
	lw.docs++
	lw.text += int64(d.Bytes)

	full := w.opt.SplitBytes > 0 && int64(lw.buf.Len()) >= w.opt.SplitBytes
	if full || (w.opt.SplitDocs > 0 && lw.pending() >= int64(w.opt.SplitDocs)) {
		return w.flush(lw)
	}
	return nil
}

// pending is the number of documents in the current buffer
func (lw *langWriter) pending() int64 {
	var done int64
	for _, p := range lw.parts {
		done += p.Documents
	}
	return lw.docs - done
}

// flush compresses the buffer into the next part file
func (w *ShardWriter) flush(lw *langWriter) error {
	if lw.buf.Len() == 0 {
		return nil
	}
	name := PartName(len(lw.parts), w.opt.Codec)
	p := filepath.Join(lw.dir, name)
	f, err := os.Create(p)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIO, "create %s", p)
	}
	h := sha256.New()
	cw := &countWriter{w: io.MultiWriter(f, h)}
	zw, err := w.opt.Codec.NewWriter(cw)
	if err != nil {
		_ = f.Close()
		return err
	}
	raw := int64(lw.buf.Len())
	docs := lw.pending()
	if _, err := lw.buf.WriteTo(zw); err != nil {
		_ = f.Close()
		return perr.Wrapf(err, perr.ErrorCodeIO, "write %s", p)
	}
	if err := zw.Close(); err != nil {
		_ = f.Close()
		return perr.Wrapf(err, perr.ErrorCodeIO, "close codec for %s", p)
	}
	if err := f.Close(); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIO, "close %s", p)
	}
	lw.buf.Reset()
	lw.parts = append(lw.parts, Part{
		Name:      name,
		Documents: docs,
		Bytes:     raw,
		Size:      cw.n,
		SHA256:    hex.EncodeToString(h.Sum(nil)),
	})
	return nil
}

// Commit flushes every language, writes the markers and publishes the shard directory
func (w *ShardWriter) Commit() (map[string]domain.LangStats, error) {
	if w.closed {
		return nil, perr.New(perr.ErrorCodeIO, "commit after close")
	}
	w.closed = true

	langs := make([]string, 0, len(w.langs))
	for l := range w.langs {
		langs = append(langs, l)
	}
	sort.Strings(langs)

	stats := make(map[string]domain.LangStats, len(langs))
	for _, l := range langs {
		lw := w.langs[l]
		if err := w.flush(lw); err != nil {
			w.abort()
			return nil, err
		}
		m := Marker{
			Shard:     w.shardID,
			Lang:      l,
			Codec:     string(w.opt.Codec),
			Documents: lw.docs,
			TextBytes: lw.text,
			Parts:     lw.parts,
		}
		if err := writeMarker(lw.dir, m); err != nil {
			w.abort()
			return nil, err
		}
		stats[l] = domain.LangStats{Documents: lw.docs, Bytes: lw.text, Parts: len(lw.parts)}
	}
	if err := atomicfs.PublishDir(w.staged, w.layout.ShardDir(w.shardID)); err != nil {
		w.abort()
		return nil, err
	}
	return stats, nil
}

// Abort drops everything written so far; safe to call after Commit
func (w *ShardWriter) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	w.abort()
}

func (w *ShardWriter) abort() { _ = os.RemoveAll(w.staged) }

type countWriter struct {
	w io.Writer
	n int64
}

func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
