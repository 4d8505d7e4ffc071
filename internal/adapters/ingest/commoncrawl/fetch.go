package commoncrawl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oscar-project/ungoliant/internal/platform/atomicfs"
	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/platform/logger"

	"github.com/dustin/go-humanize"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public Common Crawl HTTP endpoint
	DefaultBaseURL = "https://data.commoncrawl.org"

	// DefaultShardSize is the budget estimate for a shard whose size cannot be asked for
	DefaultShardSize = 160 << 20

	breakerName = "commoncrawl"
)

// Observer receives fetch outcomes; *metrics.Pipeline satisfies it
type Observer interface {
	Fetch(result string, downloaded int64)
	BreakerState(name string, state int)
}

type nopObserver struct{}

func (nopObserver) Fetch(string, int64)     {}
func (nopObserver) BreakerState(string, int) {}

// HTTPSource downloads shards into a local cache and serves them from there.
// Requests are paced by a token bucket and guarded by a circuit breaker so a failing
// endpoint fails shards fast instead of stalling every worker
type HTTPSource struct {
	base    string
	dir     string
	ids     []string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*http.Response]
	obs     Observer

	defaultSize int64
}

// cacheMeta is the sidecar kept next to each cached shard
type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	Size         int64     `json:"size"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// HTTPOption configures an HTTPSource
type HTTPOption func(*HTTPSource)

// WithClient replaces the default http client
func WithClient(c *http.Client) HTTPOption { return func(s *HTTPSource) { s.client = c } }

// WithRate limits requests per second; rps <= 0 disables pacing
func WithRate(rps float64, burst int) HTTPOption {
	return func(s *HTTPSource) {
		if rps <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithObserver reports fetch results and breaker transitions
func WithObserver(o Observer) HTTPOption { return func(s *HTTPSource) { s.obs = o } }

// WithPaths fixes the listing returned by List
func WithPaths(ids []string) HTTPOption { return func(s *HTTPSource) { s.ids = ids } }

// WithDefaultSize sets the estimate used when HEAD gives no length
func WithDefaultSize(n int64) HTTPOption { return func(s *HTTPSource) { s.defaultSize = n } }

// NewHTTPSource builds a cached HTTP source; cacheDir is created if missing
func NewHTTPSource(baseURL, cacheDir string, opts ...HTTPOption) (*HTTPSource, error) {
	if strings.TrimSpace(cacheDir) == "" {
		return nil, perr.Configf("http source needs a cache dir")
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeIO, "create cache dir %s", cacheDir)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	s := &HTTPSource{
		base:        strings.TrimRight(baseURL, "/"),
		dir:         cacheDir,
		client:      &http.Client{},
		limiter:     rate.NewLimiter(rate.Inf, 0),
		obs:         nopObserver{},
		defaultSize: DefaultShardSize,
	}
	for _, o := range opts {
		o(s)
	}
	s.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || perr.IsCode(err, perr.ErrorCodeNotFound) || perr.IsCode(err, perr.ErrorCodeCanceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Named("commoncrawl").Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			s.obs.BreakerState(name, int(to))
		},
	})
	return s, nil
}

// List returns the configured paths
func (s *HTTPSource) List(context.Context) ([]string, error) {
	if len(s.ids) == 0 {
		return nil, perr.Configf("http source has no shard paths")
	}
	return s.ids, nil
}

// CachePath is where id lives on disk once downloaded
func (s *HTTPSource) CachePath(id string) (string, error) {
	rel, err := CleanID(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filepath.FromSlash(rel)), nil
}

// Open serves id from the cache, downloading it first on a miss
func (s *HTTPSource) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	p, err := s.CachePath(id)
	if err != nil {
		return nil, err
	}
	if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
		s.obs.Fetch("hit", 0)
		return os.Open(p)
	}
	if _, err := s.download(ctx, id, p); err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeIO, "open cached shard %s", id)
	}
	return f, nil
}

// Size prefers the cached file, then a HEAD request, then the default estimate
func (s *HTTPSource) Size(ctx context.Context, id string) (int64, error) {
	p, err := s.CachePath(id)
	if err != nil {
		return 0, err
	}
	if fi, err := os.Stat(p); err == nil {
		return fi.Size(), nil
	}
	resp, err := s.do(ctx, http.MethodHead, id)
	if err != nil {
		if perr.IsCode(err, perr.ErrorCodeCanceled) {
			return 0, err
		}
		logger.C(ctx).Debug().Err(err).Str("shard_id", id).Msg("size unknown, using default estimate")
		return s.defaultSize, nil
	}
	_ = resp.Body.Close()
	if resp.ContentLength > 0 {
		return resp.ContentLength, nil
	}
	return s.defaultSize, nil
}

func (s *HTTPSource) url(id string) string { return s.base + "/" + id }

// do sends one paced request through the breaker; non-2xx statuses become errors
func (s *HTTPSource) do(ctx context.Context, method, id string) (*http.Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeCanceled, "wait for rate limiter")
	}
	resp, err := s.breaker.Execute(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, s.url(id), nil)
		if err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "build request")
		}
		resp, err := s.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, perr.Wrap(err, perr.ErrorCodeCanceled, method+" "+id)
			}
			return nil, perr.Wrap(err, perr.ErrorCodeUnavailable, method+" "+id)
		}
		switch {
		case resp.StatusCode == http.StatusOK:
			return resp, nil
		case resp.StatusCode == http.StatusNotFound:
			_ = resp.Body.Close()
			return nil, perr.NotFoundf("shard %s not found at %s", id, s.base)
		default:
			_ = resp.Body.Close()
			return nil, perr.Newf(perr.ErrorCodeUnavailable, "unexpected status %d for %s", resp.StatusCode, s.url(id))
		}
	})
	if err != nil {
		if _, ok := perr.As(err); !ok {
			// open breaker or too many half-open requests
			err = perr.Wrap(err, perr.ErrorCodeUnavailable, "commoncrawl breaker")
		}
		return nil, err
	}
	return resp, nil
}

// download streams id into the cache atomically and writes its sidecar
func (s *HTTPSource) download(ctx context.Context, id, path string) (int64, error) {
	resp, err := s.do(ctx, http.MethodGet, id)
	if err != nil {
		s.obs.Fetch("error", 0)
		return 0, err
	}
	defer resp.Body.Close()

	n, err := atomicfs.WriteFrom(path, resp.Body)
	if err != nil {
		s.obs.Fetch("error", n)
		return n, perr.Wrapf(err, perr.ErrorCodeUnavailable, "download %s", id)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		_ = os.Remove(path)
		s.obs.Fetch("error", n)
		return n, perr.Newf(perr.ErrorCodeUnavailable, "download %s: got %d of %d bytes", id, n, resp.ContentLength)
	}
	meta := cacheMeta{
		URL:          s.url(id),
		ETag:         strings.TrimSpace(resp.Header.Get("ETag")),
		LastModified: strings.TrimSpace(resp.Header.Get("Last-Modified")),
		Size:         n,
		FetchedAt:    time.Now().UTC(),
	}
	if b, err := json.Marshal(meta); err == nil {
		_ = atomicfs.WriteFile(path+".meta", b)
	}
	s.obs.Fetch("miss", n)
	logger.C(ctx).Debug().Str("shard_id", id).Str("size", humanize.IBytes(uint64(n))).Msg("shard downloaded")
	return n, nil
}

// DownloadSummary reports a prefetch run
type DownloadSummary struct {
	Fetched int
	Cached  int
	Bytes   int64
	Failed  map[string]string
}

func (d DownloadSummary) String() string {
	return fmt.Sprintf("fetched=%d cached=%d failed=%d bytes=%s", d.Fetched, d.Cached, len(d.Failed), humanize.IBytes(uint64(d.Bytes)))
}

// Download prefetches ids into the cache with at most workers concurrent transfers.
// Per-shard failures are collected; only cancellation aborts
func (s *HTTPSource) Download(ctx context.Context, ids []string, workers int) (DownloadSummary, error) {
	sum := DownloadSummary{Failed: map[string]string{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			p, err := s.CachePath(id)
			if err == nil {
				if _, serr := os.Stat(p); serr == nil {
					mu.Lock()
					sum.Cached++
					mu.Unlock()
					return nil
				}
			}
			var n int64
			if err == nil {
				n, err = s.download(gctx, id, p)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if perr.IsCode(err, perr.ErrorCodeCanceled) {
					return err
				}
				sum.Failed[id] = perr.Reason(err)
				logger.C(gctx).Warn().Err(err).Str("shard_id", id).Msg("download failed")
				return nil
			}
			sum.Fetched++
			sum.Bytes += n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, err
	}
	return sum, ctx.Err()
}
