// Package http provides the status endpoints
package http

import (
	"context"
	stdhttp "net/http"
	"strconv"
	"time"

	"github.com/oscar-project/ungoliant/internal/core/version"
	"github.com/oscar-project/ungoliant/internal/modkit/repokit"
	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	phttp "github.com/oscar-project/ungoliant/internal/platform/net/http"
	svc "github.com/oscar-project/ungoliant/internal/services/status/service"
)

// Guard is satisfied by *store.Store
type Guard interface {
	Guard(context.Context) error
}

// Deps are the handler dependencies
type Deps struct {
	Svc       *svc.Service
	Store     Guard
	Metrics   stdhttp.Handler
	StartedAt time.Time
}

type handlers struct{ deps Deps }

// Register mounts the status routes
func Register(r phttp.Router, d Deps) {
	h := &handlers{deps: d}

	phttp.GetJSON(r, "/healthz", h.health)
	phttp.GetJSON(r, "/readyz", h.ready)
	phttp.GetJSON(r, "/version", h.version)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	r.Route("/v1", func(v1 phttp.Router) {
		phttp.GetJSON(v1, "/shards", h.shards)
		phttp.GetJSON(v1, "/shards/{id}", h.shard)
		phttp.GetJSON(v1, "/languages", h.languages)
		phttp.PostJSON[svc.InvalidateInput](v1, "/invalidate", h.invalidate)
		phttp.GetJSON(v1, "/runs", h.runs)
		phttp.GetJSON(v1, "/corpora", h.corpora)
	})
}

// HealthResponse is the liveness payload
type HealthResponse struct {
	OK      bool   `json:"ok"`
	Started string `json:"started"`
	Uptime  int64  `json:"uptime"`
}

func (h *handlers) health(_ *stdhttp.Request) (any, error) {
	return HealthResponse{
		OK:      true,
		Started: h.deps.StartedAt.UTC().Format(time.RFC3339),
		Uptime:  int64(time.Since(h.deps.StartedAt) / time.Second),
	}, nil
}

// ready fails with 503 when any configured store does not answer
func (h *handlers) ready(r *stdhttp.Request) (any, error) {
	if h.deps.Store == nil {
		return map[string]string{"status": "skipped"}, nil
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := repokit.Guard(ctx, "store", h.deps.Store); err != nil {
		return nil, perr.WithOp(err, "not ready")
	}
	return map[string]string{"status": "ok"}, nil
}

func (h *handlers) version(_ *stdhttp.Request) (any, error) {
	return version.Info(), nil
}

func (h *handlers) shards(r *stdhttp.Request) (any, error) {
	return h.deps.Svc.Shards(r.Context(), r.URL.Query().Get("state"))
}

func (h *handlers) shard(r *stdhttp.Request) (any, error) {
	return h.deps.Svc.Shard(r.Context(), phttp.URLParam(r, "id"))
}

func (h *handlers) languages(r *stdhttp.Request) (any, error) {
	return h.deps.Svc.Languages(r.Context())
}

func (h *handlers) invalidate(r *stdhttp.Request, in svc.InvalidateInput) (any, error) {
	return h.deps.Svc.Invalidate(r.Context(), in)
}

func (h *handlers) runs(r *stdhttp.Request) (any, error) {
	limit, err := limitOf(r)
	if err != nil {
		return nil, err
	}
	return h.deps.Svc.Runs(r.Context(), limit)
}

func (h *handlers) corpora(r *stdhttp.Request) (any, error) {
	limit, err := limitOf(r)
	if err != nil {
		return nil, err
	}
	return h.deps.Svc.Corpora(r.Context(), r.URL.Query().Get("lang"), limit)
}

// limitOf reads ?limit=, defaulting to 50
func limitOf(r *stdhttp.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return 50, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, perr.WithField(perr.InvalidArgf("limit must be a positive integer"), "limit")
	}
	return n, nil
}
