package commoncrawl

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/platform/testkit"

	"github.com/google/go-cmp/cmp"
)

func TestDirSource(t *testing.T) {
	root := t.TempDir()
	testkit.WriteFile(t, root, "seg/wet/CC-MAIN-00010.warc.wet.gz", []byte("ten"))
	testkit.WriteFile(t, root, "seg/wet/CC-MAIN-00002.warc.wet.gz", []byte("two"))
	testkit.WriteFile(t, root, "seg/wet/CC-MAIN-00003.warc.wet", []byte("three"))
	testkit.WriteFile(t, root, "seg/wet/notes.txt", []byte("skip"))
	src := NewDirSource(root)
	ctx := context.Background()

	ids, err := src.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"seg/wet/CC-MAIN-00002.warc.wet.gz", "seg/wet/CC-MAIN-00003.warc.wet", "seg/wet/CC-MAIN-00010.warc.wet.gz"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Fatalf("List (-want +got):\n%s", diff)
	}

	rc, err := src.Open(ctx, ids[2])
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "ten" {
		t.Fatalf("body = %q", b)
	}
	if n, err := src.Size(ctx, ids[0]); err != nil || n != 3 {
		t.Fatalf("Size = %d, %v", n, err)
	}
	if _, err := src.Open(ctx, "seg/missing.warc.wet.gz"); !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("missing err = %v", err)
	}
	if _, err := src.Open(ctx, "../escape.warc.wet.gz"); !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("escape err = %v", err)
	}
}

func TestShardName(t *testing.T) {
	id := "crawl-data/CC-MAIN-2023-06/segments/1674764494826.88/wet/CC-MAIN-20230126210844-20230127000844-00001.warc.wet.gz"
	if got := ShardName(id); got != "CC-MAIN-20230126210844-20230127000844-00001" {
		t.Fatalf("ShardName = %q", got)
	}
}

func TestReadPaths(t *testing.T) {
	in := "# header\na/1.warc.wet.gz\n\n a/2.warc.wet.gz \na/1.warc.wet.gz\n"
	got, err := ReadPaths(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadPaths: %v", err)
	}
	if diff := cmp.Diff([]string{"a/1.warc.wet.gz", "a/2.warc.wet.gz"}, got); diff != "" {
		t.Fatalf("ReadPaths (-want +got):\n%s", diff)
	}
	if _, err := ReadPaths(strings.NewReader("/abs/path\n")); !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("absolute path err = %v", err)
	}

	p := testkit.WriteFile(t, t.TempDir(), "wet.paths.gz", testkit.Gzip(t, []byte(in)))
	got, err = LoadPaths(p)
	if err != nil || len(got) != 2 {
		t.Fatalf("LoadPaths = %v, %v", got, err)
	}
	ps := PathsSource{Source: NewDirSource(t.TempDir()), IDs: got}
	if ids, _ := ps.List(context.Background()); len(ids) != 2 {
		t.Fatalf("PathsSource.List = %v", ids)
	}
}

type recordingObserver struct {
	mu      sync.Mutex
	results []string
	states  []int
}

func (r *recordingObserver) Fetch(result string, _ int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *recordingObserver) BreakerState(_ string, state int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func TestHTTPSource_CacheMissThenHit(t *testing.T) {
	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.warc.wet.gz" {
			http.NotFound(w, r)
			return
		}
		if r.Method == http.MethodGet {
			gets.Add(1)
		}
		w.Header().Set("ETag", `"abc"`)
		w.Header().Set("Content-Length", "11")
		_, _ = io.WriteString(w, "shard-bytes")
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	cache := t.TempDir()
	src, err := NewHTTPSource(srv.URL, cache, WithObserver(obs), WithRate(1000, 10), WithPaths([]string{"seg/a.warc.wet.gz"}))
	if err != nil {
		t.Fatalf("NewHTTPSource: %v", err)
	}
	ctx := context.Background()

	if n, err := src.Size(ctx, "seg/a.warc.wet.gz"); err != nil || n != int64(len("shard-bytes")) {
		t.Fatalf("Size via HEAD = %d, %v", n, err)
	}
	for range 2 {
		rc, err := src.Open(ctx, "seg/a.warc.wet.gz")
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		b, _ := io.ReadAll(rc)
		_ = rc.Close()
		if string(b) != "shard-bytes" {
			t.Fatalf("body = %q", b)
		}
	}
	if gets.Load() != 1 {
		t.Fatalf("GETs = %d, want 1", gets.Load())
	}
	if diff := cmp.Diff([]string{"miss", "hit"}, obs.results); diff != "" {
		t.Fatalf("fetch results (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(cache, "seg", "a.warc.wet.gz.meta")); err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}

	if _, err := src.Open(ctx, "missing.warc.wet.gz"); !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("404 err = %v", err)
	}
	if ids, err := src.List(ctx); err != nil || len(ids) != 1 {
		t.Fatalf("List = %v, %v", ids, err)
	}
}

func TestHTTPSource_BreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	src, err := NewHTTPSource(srv.URL, t.TempDir(), WithObserver(obs))
	if err != nil {
		t.Fatalf("NewHTTPSource: %v", err)
	}
	ctx := context.Background()
	for i := range 6 {
		_, err := src.Open(ctx, "x.warc.wet.gz")
		if !perr.IsCode(err, perr.ErrorCodeUnavailable) {
			t.Fatalf("attempt %d err = %v", i, err)
		}
	}
	if hits.Load() != 5 {
		t.Fatalf("server hits = %d, want 5 before the breaker opens", hits.Load())
	}
	if len(obs.states) == 0 {
		t.Fatalf("breaker transition not observed")
	}
	if _, err := src.List(ctx); !perr.IsCode(err, perr.ErrorCodeConfig) {
		t.Fatalf("List without paths err = %v", err)
	}
}

func TestHTTPSource_Download(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "gone") {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, r.URL.Path)
	}))
	defer srv.Close()

	cache := t.TempDir()
	testkit.WriteFile(t, cache, "c.warc.wet.gz", []byte("cached"))
	src, err := NewHTTPSource(srv.URL, cache)
	if err != nil {
		t.Fatalf("NewHTTPSource: %v", err)
	}
	sum, err := src.Download(context.Background(), []string{"a.warc.wet.gz", "b.warc.wet.gz", "c.warc.wet.gz", "gone.warc.wet.gz"}, 2)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if sum.Fetched != 2 || sum.Cached != 1 || len(sum.Failed) != 1 || sum.Failed["gone.warc.wet.gz"] == "" {
		t.Fatalf("summary = %+v", sum)
	}
	if !strings.Contains(sum.String(), "fetched=2") {
		t.Fatalf("String = %q", sum.String())
	}
}

func TestNewHTTPSource_NeedsCacheDir(t *testing.T) {
	if _, err := NewHTTPSource("", " "); !perr.IsCode(err, perr.ErrorCodeConfig) {
		t.Fatalf("err = %v", err)
	}
}
