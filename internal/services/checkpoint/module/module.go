// Package module implements the checkpoint module
package module

import (
	"context"
	"fmt"

	"github.com/oscar-project/ungoliant/internal/modkit"
	"github.com/oscar-project/ungoliant/internal/modkit/repokit"
	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	phttp "github.com/oscar-project/ungoliant/internal/platform/net/http"
	"github.com/oscar-project/ungoliant/internal/platform/store"
	"github.com/oscar-project/ungoliant/internal/services/checkpoint/domain"
	"github.com/oscar-project/ungoliant/internal/services/checkpoint/repo"
	"github.com/oscar-project/ungoliant/internal/services/checkpoint/service"
)

// Ports exposed by the checkpoint module
type Ports struct {
	Checkpoint domain.CheckpointPort
}

// Module implements modkit.Module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New builds the checkpoint over deps.Store and applies the schema unless disabled
func New(ctx context.Context, deps modkit.Deps) (*Module, error) {
	db := deps.SQL()
	if db == nil {
		return nil, perr.Configf("checkpoint: no SQL backend configured (SERVICE_CHECKPOINT_DRIVER)")
	}
	cfg := FromConfig(deps.Cfg)

	if cfg.Migrate {
		if err := repo.Migrate(ctx, db); err != nil {
			return nil, err
		}
	}
	if deps.Store.Dialect == store.DialectPG && cfg.LockTimeout > 0 {
		db = repokit.WithBeginHooks(db, repokit.SetLocal("lock_timeout", fmt.Sprintf("%dms", cfg.LockTimeout.Milliseconds())))
	}

	svc := service.New(db, repo.New(), service.Config{
		StaleAfter: cfg.StaleAfter,
		Retry: store.RetryPolicy{
			Attempts: cfg.RetryAttempts,
			Base:     cfg.RetryBase,
			Max:      store.DefaultRetry.Max,
		},
	})
	return &Module{deps: deps, ports: Ports{Checkpoint: svc}}, nil
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return "checkpoint" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(_ phttp.Router) {}
