package http

import (
	"encoding/json"
	"io"
	stdhttp "net/http"

	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/platform/validate"
)

const maxBodyBytes = 1 << 20

// ParseJSON decodes a single JSON object into T, rejects unknown fields, then validates it
func ParseJSON[T any](r *stdhttp.Request) (T, error) {
	var zero, dst T
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&dst); err != nil {
		if err == io.EOF {
			return zero, perr.InvalidArgf("empty body")
		}
		return zero, perr.InvalidArgf("invalid JSON: %v", err)
	}
	if dec.More() {
		return zero, perr.InvalidArgf("unexpected trailing data")
	}
	if err := validate.Struct(dst); err != nil {
		return zero, err
	}
	return dst, nil
}
