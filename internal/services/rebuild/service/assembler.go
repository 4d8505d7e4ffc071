// Package service assembles per-language final corpora from the intermediate output of done shards
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"hash"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oscar-project/ungoliant/internal/core/lsh"
	"github.com/oscar-project/ungoliant/internal/core/normalize"
	"github.com/oscar-project/ungoliant/internal/platform/atomicfs"
	"github.com/oscar-project/ungoliant/internal/platform/codec"
	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/platform/logger"
	ustrings "github.com/oscar-project/ungoliant/internal/platform/strings"
	cpdom "github.com/oscar-project/ungoliant/internal/services/checkpoint/domain"
	"github.com/oscar-project/ungoliant/internal/services/rebuild/domain"
	shdom "github.com/oscar-project/ungoliant/internal/services/shards/domain"
	"github.com/oscar-project/ungoliant/internal/services/shards/output"

	"github.com/dustin/go-humanize"
)

// Config holds assembler settings
type Config struct {
	// CorpusDir receives <lang>/<lang>.jsonl.<ext> and <lang>/<lang>.manifest.json
	CorpusDir string
	Codec     codec.Codec
	Filters   domain.Filters
	NearDup   NearDup
}

// NearDup counts kept documents whose LSH digest is within Distance of one of the
// last Window kept documents. Nothing is dropped; Window 0 disables it
type NearDup struct {
	Distance int
	Window   int
}

// Assembler implements domain.AssemblerPort
type Assembler struct {
	Checkpoint cpdom.CheckpointPort
	Layout     output.Layout
	Reporter   domain.Reporter
	Cfg        Config
}

// New constructs an Assembler; rep may be nil
func New(cp cpdom.CheckpointPort, layout output.Layout, rep domain.Reporter, cfg Config) *Assembler {
	if cp == nil {
		panic("rebuild.Assembler requires a non nil checkpoint")
	}
	if cfg.Codec == "" {
		cfg.Codec = codec.Gzip
	}
	if rep == nil {
		rep = Reporters{}
	}
	return &Assembler{Checkpoint: cp, Layout: layout, Reporter: rep, Cfg: cfg}
}

// CorpusPath is the final corpus stream of lang
func (a *Assembler) CorpusPath(lang string) string {
	return filepath.Join(a.Cfg.CorpusDir, lang, lang+".jsonl"+a.Cfg.Codec.Ext())
}

// ManifestPath is the manifest of lang
func (a *Assembler) ManifestPath(lang string) string {
	return filepath.Join(a.Cfg.CorpusDir, lang, lang+".manifest.json")
}

// Rebuild concatenates lang's documents from every done shard in natural shard order,
// dropping exact duplicates of the normalized text (first occurrence wins) and documents
// rejected by the post-filters. A missing marker or a digest mismatch aborts the rebuild
// and leaves any previous corpus in place
func (a *Assembler) Rebuild(ctx context.Context, lang string) (domain.Manifest, error) {
	lang = strings.TrimSpace(lang)
	if lang == "" || strings.ContainsAny(lang, `/\.`) {
		return domain.Manifest{}, perr.InvalidArgf("invalid language %q", lang)
	}
	log := logger.C(ctx).With().Str("lang", lang).Logger()
	start := time.Now()

	counts, err := a.Checkpoint.ShardsWithLang(ctx, lang)
	if err != nil {
		return domain.Manifest{}, perr.WithOp(err, "rebuild "+lang)
	}
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ustrings.NaturalLess(ids[i], ids[j]) })

	m := domain.Manifest{
		Lang:     lang,
		File:     filepath.Base(a.CorpusPath(lang)),
		Codec:    string(a.Cfg.Codec),
		Shards:   len(ids),
		Filtered: map[string]int64{},
		Filters:  a.Cfg.Filters,
	}

	f, err := atomicfs.Create(a.CorpusPath(lang))
	if err != nil {
		return m, err
	}
	disk := &countWriter{w: f}
	zw, err := a.Cfg.Codec.NewWriter(disk)
	if err != nil {
		f.Abort()
		return m, err
	}
	h := sha256.New()
	st := &stream{w: zw, h: h, seen: map[normalize.Key]struct{}{}}
	if a.Cfg.NearDup.Window > 0 {
		st.near = lsh.NewWindow(a.Cfg.NearDup.Window, a.Cfg.NearDup.Distance)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			f.Abort()
			return m, perr.Wrap(err, perr.ErrorCodeCanceled, "rebuild "+lang)
		}
		mk, err := output.Scan(a.Layout.LangDir(id, lang), func(d shdom.Document) error {
			if reason := a.Cfg.Filters.Reject(d); reason != "" {
				m.Filtered[reason]++
				return nil
			}
			return st.add(&m, d)
		})
		if err == nil && mk.Documents != counts[id].Documents {
			err = perr.Integrityf("shard %s: checkpoint records %d %s documents, marker holds %d",
				id, counts[id].Documents, lang, mk.Documents)
		}
		if err != nil {
			f.Abort()
			return m, perr.WithOp(err, "rebuild "+lang)
		}
	}

	if err := zw.Close(); err != nil {
		f.Abort()
		return m, perr.Wrapf(err, perr.ErrorCodeIO, "finish %s", a.CorpusPath(lang))
	}
	m.Size = disk.n
	m.Digest = "sha256:" + hex.EncodeToString(h.Sum(nil))
	if len(m.Filtered) == 0 {
		m.Filtered = nil
	}

	// both files are staged before either is renamed, so a failure up to here keeps the previous pair
	mf, err := a.stageManifest(lang, m)
	if err != nil {
		f.Abort()
		return m, err
	}
	if err := f.Commit(); err != nil {
		mf.Abort()
		return m, err
	}
	if err := mf.Commit(); err != nil {
		return m, perr.WithOp(err, "corpus published without its manifest")
	}

	log.Info().Int("shards", m.Shards).Int64("documents", m.Documents).Int64("duplicates", m.Duplicates).
		Int64("near_duplicates", m.NearDups).Int64("filtered", m.FilteredTotal()).Str("size", humanize.Bytes(uint64(m.Size))).
		Dur("elapsed", time.Since(start)).Msg("corpus rebuilt")
	a.Reporter.Rebuilt(ctx, m)
	return m, nil
}

func (a *Assembler) stageManifest(lang string, m domain.Manifest) (*atomicfs.File, error) {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeIO, "encode manifest")
	}
	mf, err := atomicfs.Create(a.ManifestPath(lang))
	if err != nil {
		return nil, err
	}
	if _, err := mf.Write(append(b, '\n')); err != nil {
		mf.Abort()
		return nil, perr.Wrapf(err, perr.ErrorCodeIO, "write %s", a.ManifestPath(lang))
	}
	return mf, nil
}

// RebuildAll rebuilds every language present in done shards, in tag order; the first failure stops it
func (a *Assembler) RebuildAll(ctx context.Context) ([]domain.Manifest, error) {
	totals, err := a.Checkpoint.LangTotals(ctx)
	if err != nil {
		return nil, perr.WithOp(err, "rebuild all")
	}
	langs := make([]string, 0, len(totals))
	for _, t := range totals {
		langs = append(langs, t.Lang)
	}
	sort.Strings(langs)

	out := make([]domain.Manifest, 0, len(langs))
	for _, l := range langs {
		m, err := a.Rebuild(ctx, l)
		if err != nil {
			return out, err
		}
		out = append(out, m)
	}
	return out, nil
}

// stream writes kept documents as jsonl and tracks the dedup index
type stream struct {
	w    io.Writer
	h    hash.Hash
	seen map[normalize.Key]struct{}
	near *lsh.Window
}

func (s *stream) add(m *domain.Manifest, d shdom.Document) error {
	k := normalize.KeyOf(d.Text)
	if _, dup := s.seen[k]; dup {
		m.Duplicates++
		return nil
	}
	s.seen[k] = struct{}{}

	line, err := json.Marshal(d)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIO, "encode document %s", d.ID)
	}
	line = append(line, '\n')
	s.h.Write(line)
	if _, err := s.w.Write(line); err != nil {
		return perr.Wrap(err, perr.ErrorCodeIO, "write corpus")
	}
	if s.near != nil && s.near.Add(d.LSH) {
		m.NearDups++
	}
	m.Documents++
	m.TextBytes += int64(d.Bytes)
	m.StreamBytes += int64(len(line))
	return nil
}

type countWriter struct {
	w io.Writer
	n int64
}

func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
