package commoncrawl

import (
	"bufio"
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/oscar-project/ungoliant/internal/platform/codec"
	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
)

// ReadPaths parses a wet.paths listing: one shard path per line, blanks and # comments ignored.
// Duplicate paths keep their first position
func ReadPaths(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	seen := map[string]bool{}
	var out []string
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		id, err := CleanID(s)
		if err != nil {
			return nil, perr.WithOp(err, "paths line "+strconv.Itoa(line))
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	if err := sc.Err(); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeIO, "read paths")
	}
	return out, nil
}

// LoadPaths reads a wet.paths or wet.paths.gz file
func LoadPaths(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeConfig, "open paths file %s", path)
	}
	defer f.Close()
	r, err := codec.FromPath(path).NewReader(f)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return ReadPaths(r)
}

// PathsSource wraps another source with a fixed listing from a paths file
type PathsSource struct {
	Source
	IDs []string
}

// List returns the fixed listing
func (p PathsSource) List(context.Context) ([]string, error) { return p.IDs, nil }

