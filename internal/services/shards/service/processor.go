// Package service implements the shard processor
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/oscar-project/ungoliant/internal/adapters/ingest/commoncrawl"
	"github.com/oscar-project/ungoliant/internal/core/lid"
	"github.com/oscar-project/ungoliant/internal/core/lsh"
	"github.com/oscar-project/ungoliant/internal/core/multilingual"
	"github.com/oscar-project/ungoliant/internal/core/quality"
	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/platform/logger"
	"github.com/oscar-project/ungoliant/internal/services/shards/domain"
	"github.com/oscar-project/ungoliant/internal/services/shards/output"

	"github.com/google/uuid"
)

// documentNamespace seeds the deterministic document ids
var documentNamespace = uuid.MustParse("6f1d7c2a-8a55-4f0e-9a57-0c2b8e0d5a11")

// Config for the processor
type Config struct {
	OutDir       string
	MinLineChars int
	Absorb       Absorb
	Output       output.Options
	KeepHeaders  bool
	// Multi keeps evenly mixed records whole under the multi tag
	Multi multilingual.Options
	// LSH stores a TLSH digest on every written document
	LSH bool
}

// Evaluator is the quality/domain filter
type Evaluator interface {
	Evaluate(ctx context.Context, d quality.Draft) quality.Verdict
}

// Processor implements domain.ProcessorPort; it holds only read-only state and is shared by all workers
type Processor struct {
	classifier *lid.Classifier
	filter     Evaluator
	multi      *multilingual.Detector
	cfg        Config
	layout     output.Layout
}

// New constructs a Processor
func New(c *lid.Classifier, f Evaluator, cfg Config) *Processor {
	if cfg.MinLineChars < 0 {
		cfg.MinLineChars = 0
	}
	if cfg.Absorb.MaxChars <= 0 {
		cfg.Absorb.MaxChars = 100
	}
	return &Processor{
		classifier: c,
		filter:     f,
		multi:      multilingual.New(cfg.Multi),
		cfg:        cfg,
		layout:     output.Layout{Root: cfg.OutDir},
	}
}

// Layout exposes where shards are written
func (p *Processor) Layout() output.Layout { return p.layout }

// Process streams one shard into its intermediate output set.
// Malformed records are counted; an unreadable shard returns a Decompress or Parse error
// and leaves nothing published
func (p *Processor) Process(ctx context.Context, shardID string, r io.Reader) (domain.Result, error) {
	start := time.Now()
	res := domain.Result{
		Shard:          shardID,
		Languages:      map[string]domain.LangStats{},
		Rejected:       map[string]int64{},
		RejectedByLang: map[string]int64{},
	}

	rd, err := commoncrawl.NewReader(r)
	if err != nil {
		return res, err
	}
	defer rd.Close()

	w, err := output.NewShardWriter(p.layout, shardID, p.cfg.Output)
	if err != nil {
		return res, err
	}
	committed := false
	defer func() {
		if !committed {
			w.Abort()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return res, perr.Wrap(err, perr.ErrorCodeCanceled, "process "+shardID)
		}
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, err
		}
		res.Records++
		for _, d := range p.documents(shardID, rec) {
			v := p.filter.Evaluate(ctx, quality.Draft{URL: d.URL, Lang: d.Lang, Text: d.Text})
			switch v := v.(type) {
			case quality.Reject:
				res.Rejected[v.Reason]++
				res.RejectedByLang[d.Lang]++
				continue
			case quality.Accept:
				d.Quality = v.Score
				d.Annotations = v.Annotations
			}
			if p.cfg.LSH {
				d.LSH = lsh.Digest(d.Text)
			}
			if err := w.Append(d); err != nil {
				return res, err
			}
		}
	}
	res.Malformed = int64(rd.Malformed())
	res.Truncated = rd.Truncated()

	stats, err := w.Commit()
	if err != nil {
		return res, err
	}
	committed = true
	res.Languages = stats
	res.Elapsed = time.Since(start)

	logger.C(ctx).Debug().
		Int64("records", res.Records).
		Int64("malformed", res.Malformed).
		Int64("documents", res.Documents()).
		Int64("rejected", res.RejectedTotal()).
		Dur("elapsed", res.Elapsed).
		Msg("shard processed")
	return res, nil
}

// documents splits, classifies and groups one record
func (p *Processor) documents(shardID string, rec commoncrawl.Record) []domain.Document {
	lines := splitLines(rec.Body, p.cfg.MinLineChars)
	if len(lines) == 0 {
		return nil
	}
	classify(p.classifier, lines)
	if p.multi.Enabled() && p.multi.Detect(detectorLines(lines)) {
		d := p.document(shardID, rec, lines, multilingual.Lang)
		d.Confidence = summarize(lines, func(ln line) bool { return ln.lang != "" })
		d.LineLangs = make([]string, len(lines))
		for i, ln := range lines {
			d.LineLangs[i] = ln.lang
		}
		return []domain.Document{d}
	}
	runs := group(lines, p.cfg.Absorb)

	out := make([]domain.Document, 0, len(runs))
	for _, r := range runs {
		d := p.document(shardID, rec, r.lines, r.lang)
		d.Confidence = confidence(r)
		d.AbsorbedLines = r.absorbed
		out = append(out, d)
	}
	return out
}

func (p *Processor) document(shardID string, rec commoncrawl.Record, lines []line, lang string) domain.Document {
	texts := make([]string, len(lines))
	for i, ln := range lines {
		texts[i] = ln.text
	}
	text := strings.Join(texts, "\n")
	first, last := lines[0].no, lines[len(lines)-1].no
	d := domain.Document{
		ID:          DocumentID(shardID, rec.Index, first).String(),
		Shard:       shardID,
		RecordID:    rec.RecordID,
		RecordIndex: rec.Index,
		URL:         rec.URL,
		Lang:        lang,
		Text:        text,
		Bytes:       len(text),
		LineStart:   first,
		LineEnd:     last,
	}
	if p.cfg.KeepHeaders {
		d.Headers = rec.Headers
	}
	return d
}

func detectorLines(lines []line) []multilingual.Line {
	out := make([]multilingual.Line, len(lines))
	for i, ln := range lines {
		out[i] = multilingual.Line{Lang: ln.lang, Conf: ln.conf, Bytes: len(ln.text)}
	}
	return out
}

// DocumentID is a UUIDv5 of (shard, record index, first line)
func DocumentID(shardID string, recordIndex, lineStart int) uuid.UUID {
	return uuid.NewSHA1(documentNamespace, fmt.Appendf(nil, "%s\x00%d\x00%d", shardID, recordIndex, lineStart))
}

// confidence summarizes the run's own lines; absorbed lines do not count
func confidence(r run) domain.Confidence {
	return summarize(r.lines, func(ln line) bool { return ln.lang == r.lang })
}

func summarize(lines []line, counts func(line) bool) domain.Confidence {
	var c domain.Confidence
	n := 0
	for _, ln := range lines {
		if !counts(ln) {
			continue
		}
		if n == 0 || ln.conf < c.Min {
			c.Min = ln.conf
		}
		if ln.conf > c.Max {
			c.Max = ln.conf
		}
		c.Mean += ln.conf
		n++
	}
	if n > 0 {
		c.Mean /= float64(n)
	}
	return c
}
