// Package output writes and reads intermediate output sets:
// <root>/shards/<shard>/<lang>/part-NNNNN.jsonl.<ext> plus a _SUCCESS.json marker per language
package output

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oscar-project/ungoliant/internal/adapters/ingest/commoncrawl"
	"github.com/oscar-project/ungoliant/internal/platform/codec"
	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
)

const (
	// MarkerName is the completion marker written last in each language directory
	MarkerName = "_SUCCESS.json"

	shardsDir     = "shards"
	partialSuffix = ".partial"
)

// Layout resolves paths under an output root
type Layout struct {
	Root string
}

// ShardDir is the published directory of a shard id
func (l Layout) ShardDir(shardID string) string {
	return filepath.Join(l.Root, shardsDir, commoncrawl.ShardName(shardID))
}

// StagingDir is where a shard is written before it is published
func (l Layout) StagingDir(shardID string) string { return l.ShardDir(shardID) + partialSuffix }

// LangDir is one language directory of a shard
func (l Layout) LangDir(shardID, lang string) string {
	return filepath.Join(l.ShardDir(shardID), lang)
}

// PartName renders part-00000.jsonl.gz style names
func PartName(n int, c codec.Codec) string {
	return fmt.Sprintf("part-%05d.jsonl%s", n, c.Ext())
}

func isStaging(name string) bool { return strings.HasSuffix(name, partialSuffix) }

// Staging lists the unpublished shard directories under the root, sorted. They belong to
// shards being written or to workers that were killed before publishing
func (l Layout) Staging() ([]string, error) {
	dir := filepath.Join(l.Root, shardsDir)
	ents, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeIO, "list %s", dir)
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() && isStaging(e.Name()) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
