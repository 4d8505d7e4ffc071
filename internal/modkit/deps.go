package modkit

import (
	"github.com/oscar-project/ungoliant/internal/platform/config"
	"github.com/oscar-project/ungoliant/internal/platform/logger"
	"github.com/oscar-project/ungoliant/internal/platform/metrics"
	"github.com/oscar-project/ungoliant/internal/platform/store"
)

// Deps holds core dependencies passed to modules
// this is wiring only and does not introduce new abstractions
type Deps struct {
	Log logger.Logger
	Cfg config.Conf

	// Store carries the checkpoint backend and the optional ClickHouse sink
	Store *store.Store

	// Metrics is nil when the caller does not expose /metrics
	Metrics *metrics.Pipeline
}

// SQL returns the checkpoint backend or nil
func (d Deps) SQL() store.TxRunner {
	if d.Store == nil {
		return nil
	}
	return d.Store.SQL
}

// CH returns the ClickHouse seam or nil
func (d Deps) CH() store.Clickhouse {
	if d.Store == nil {
		return nil
	}
	return d.Store.CH
}

// ZeroOK returns true when deps are safe to use with zero values in tests
// consumers should still nil check for optional stores
func (d Deps) ZeroOK() bool { return true }
