package output

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/oscar-project/ungoliant/internal/platform/codec"
	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/services/shards/domain"
)

const maxDocumentLine = 64 << 20

// Scan reads every document of a (shard, language) output set in part order.
// The marker must exist and each part's digest must match it; fn errors stop the scan
func Scan(dir string, fn func(domain.Document) error) (Marker, error) {
	m, err := ReadMarker(dir)
	if err != nil {
		return Marker{}, err
	}
	c, err := codec.Parse(m.Codec)
	if err != nil {
		return m, perr.WithOp(err, "marker "+dir)
	}
	for _, p := range m.Parts {
		if err := scanPart(filepath.Join(dir, p.Name), c, p, fn); err != nil {
			return m, err
		}
	}
	return m, nil
}

func scanPart(path string, c codec.Codec, want Part, fn func(domain.Document) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return perr.Integrityf("part %s listed in marker is missing", path)
		}
		return perr.Wrapf(err, perr.ErrorCodeIO, "open %s", path)
	}
	defer f.Close()

	h := sha256.New()
	zr, err := c.NewReader(io.TeeReader(f, h))
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIntegrity, "open %s", path)
	}
	defer zr.Close()

	sc := bufio.NewScanner(zr)
	sc.Buffer(make([]byte, 1<<20), maxDocumentLine)
	var docs int64
	for sc.Scan() {
		var d domain.Document
		if err := json.Unmarshal(sc.Bytes(), &d); err != nil {
			return perr.Wrapf(err, perr.ErrorCodeIntegrity, "decode document %d of %s", docs, path)
		}
		docs++
		if err := fn(d); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIntegrity, "read %s", path)
	}
	// bytes the decoder never asked for still belong to the digest
	if _, err := io.Copy(h, f); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIO, "read %s", path)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != want.SHA256 {
		return perr.Integrityf("digest mismatch for %s: marker %s, file %s", path, want.SHA256, got)
	}
	if docs != want.Documents {
		return perr.Integrityf("%s holds %d documents, marker says %d", path, docs, want.Documents)
	}
	return nil
}
