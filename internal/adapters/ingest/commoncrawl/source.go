package commoncrawl

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	ustrings "github.com/oscar-project/ungoliant/internal/platform/strings"
)

// WETSuffix is the filename suffix of Common Crawl WET shards
const WETSuffix = ".warc.wet.gz"

// plainSuffix marks shards someone already decompressed
const plainSuffix = ".warc.wet"

// Source acquires shards by identifier
type Source interface {
	// List enumerates the candidate shard identifiers of a run
	List(ctx context.Context) ([]string, error)
	// Open returns the compressed byte stream of one shard
	Open(ctx context.Context, id string) (io.ReadCloser, error)
	// Size estimates the compressed size of a shard, used for in-flight budgeting
	Size(ctx context.Context, id string) (int64, error)
}

// DirSource serves shards already on local disk; ids are slash separated paths relative to Root
type DirSource struct {
	Root string
}

// NewDirSource returns a source over root
func NewDirSource(root string) *DirSource { return &DirSource{Root: root} }

// List walks Root for *.warc.wet.gz and *.warc.wet files, in natural order
func (d *DirSource) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := filepath.WalkDir(d.Root, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if e.IsDir() || !(strings.HasSuffix(e.Name(), WETSuffix) || strings.HasSuffix(e.Name(), plainSuffix)) {
			return nil
		}
		rel, err := filepath.Rel(d.Root, p)
		if err != nil {
			return err
		}
		ids = append(ids, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeIO, "list shards under %s", d.Root)
	}
	sort.Slice(ids, func(i, j int) bool { return ustrings.NaturalLess(ids[i], ids[j]) })
	return ids, nil
}

// Open opens the shard file
func (d *DirSource) Open(_ context.Context, id string) (io.ReadCloser, error) {
	p, err := d.path(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, perr.NotFoundf("shard %s not found under %s", id, d.Root)
		}
		return nil, perr.Wrapf(err, perr.ErrorCodeIO, "open shard %s", id)
	}
	return f, nil
}

// Size stats the shard file
func (d *DirSource) Size(_ context.Context, id string) (int64, error) {
	p, err := d.path(id)
	if err != nil {
		return 0, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, perr.NotFoundf("shard %s not found under %s", id, d.Root)
		}
		return 0, perr.Wrapf(err, perr.ErrorCodeIO, "stat shard %s", id)
	}
	return fi.Size(), nil
}

func (d *DirSource) path(id string) (string, error) {
	rel, err := CleanID(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.Root, filepath.FromSlash(rel)), nil
}

// CleanID validates a shard id: a relative slash path that stays below its root
func CleanID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", perr.InvalidArgf("empty shard id")
	}
	if !fs.ValidPath(id) {
		return "", perr.InvalidArgf("shard id %q must be a relative path without . or .. elements", id)
	}
	return id, nil
}

// ShardName is the short name of a shard id, used for output directories.
// "crawl-data/CC-MAIN-2023-06/segments/1674764494826.88/wet/CC-MAIN-...-00001.warc.wet.gz"
// becomes "CC-MAIN-...-00001"
func ShardName(id string) string {
	return strings.TrimSuffix(strings.TrimSuffix(filepath.Base(filepath.FromSlash(id)), ".gz"), ".warc.wet")
}
