package output

import (
	"encoding/json"
	"os"
	"path/filepath"

	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
)

// Part describes one written chunk of a language's output
type Part struct {
	Name      string `json:"name"`
	Documents int64  `json:"documents"`
	Bytes     int64  `json:"bytes"` // uncompressed jsonl bytes
	Size      int64  `json:"size"`  // bytes on disk
	SHA256    string `json:"sha256"`
}

// Marker is the _SUCCESS.json completion marker of a (shard, language) output set
type Marker struct {
	Shard     string `json:"shard"`
	Lang      string `json:"lang"`
	Codec     string `json:"codec"`
	Documents int64  `json:"documents"`
	TextBytes int64  `json:"text_bytes"`
	Parts     []Part `json:"parts"`
}

// ReadMarker loads dir/_SUCCESS.json; a missing marker is an integrity error
func ReadMarker(dir string) (Marker, error) {
	p := filepath.Join(dir, MarkerName)
	b, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return Marker{}, perr.Integrityf("completion marker missing in %s", dir)
		}
		return Marker{}, perr.Wrapf(err, perr.ErrorCodeIO, "read %s", p)
	}
	var m Marker
	if err := json.Unmarshal(b, &m); err != nil {
		return Marker{}, perr.Wrapf(err, perr.ErrorCodeIntegrity, "decode %s", p)
	}
	return m, nil
}

func writeMarker(dir string, m Marker) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeIO, "encode marker")
	}
	p := filepath.Join(dir, MarkerName)
	if err := os.WriteFile(p, append(b, '\n'), 0o644); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIO, "write %s", p)
	}
	return nil
}
