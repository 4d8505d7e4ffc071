// Package metrics exposes the pipeline's prometheus collectors on a private registry
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ungoliant"

// Pipeline holds the collectors the orchestrator, fetcher and assembler update
type Pipeline struct {
	registry *prometheus.Registry

	shardsTotal    *prometheus.CounterVec
	shardDuration  *prometheus.HistogramVec
	shardsInFlight prometheus.Gauge
	budgetBytes    prometheus.Gauge
	documents      *prometheus.CounterVec
	documentBytes  *prometheus.CounterVec
	rejected       *prometheus.CounterVec
	malformed      prometheus.Counter
	fetches        *prometheus.CounterVec
	fetchBytes     prometheus.Counter
	breakerState   *prometheus.GaugeVec
	rebuildDocs    *prometheus.CounterVec
	rebuildDups    *prometheus.CounterVec
}

// New registers every collector plus the go and process collectors
func New() *Pipeline {
	registry := prometheus.NewRegistry()

	m := &Pipeline{
		registry: registry,
		shardsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "shards_total",
			Help: "Shards finished by outcome (done, failed, skipped, lost).",
		}, []string{"outcome"}),
		shardDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "shard_duration_seconds",
			Help:    "Wall time from claim to checkpoint by outcome.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		}, []string{"outcome"}),
		shardsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "shards_in_flight",
			Help: "Shards currently being processed.",
		}),
		budgetBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "inflight_budget_bytes",
			Help: "Estimated bytes of shard data admitted and not yet released.",
		}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "documents_total",
			Help: "Documents written to intermediate output by language.",
		}, []string{"lang"}),
		documentBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "document_bytes_total",
			Help: "UTF-8 text bytes written to intermediate output by language.",
		}, []string{"lang"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "rejected_documents_total",
			Help: "Documents dropped by the filters, by stage (blocklist, content) and reason.",
		}, []string{"stage", "reason"}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "malformed_records_total",
			Help: "Records skipped because they could not be parsed.",
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "source", Name: "fetch_total",
			Help: "Shard fetches by result (hit, downloaded, error, rejected).",
		}, []string{"result"}),
		fetchBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "source", Name: "downloaded_bytes_total",
			Help: "Compressed bytes downloaded from the remote source.",
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "source", Name: "breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open).",
		}, []string{"name"}),
		rebuildDocs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rebuild", Name: "documents_total",
			Help: "Documents written to the final corpus by language.",
		}, []string{"lang"}),
		rebuildDups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rebuild", Name: "duplicates_total",
			Help: "Documents dropped as exact duplicates by language.",
		}, []string{"lang"}),
	}

	registry.MustRegister(
		m.shardsTotal, m.shardDuration, m.shardsInFlight, m.budgetBytes,
		m.documents, m.documentBytes, m.rejected, m.malformed,
		m.fetches, m.fetchBytes, m.breakerState,
		m.rebuildDocs, m.rebuildDups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the exposition format
func (m *Pipeline) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry for tests and custom collectors
func (m *Pipeline) Registry() *prometheus.Registry { return m.registry }

// StartShard marks a shard in flight
func (m *Pipeline) StartShard() { m.shardsInFlight.Inc() }

// FinishShard records a processed shard outcome
func (m *Pipeline) FinishShard(outcome string, d time.Duration) {
	m.shardsInFlight.Dec()
	m.shardsTotal.WithLabelValues(outcome).Inc()
	m.shardDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// CountShard records an outcome that never ran (skipped, lost)
func (m *Pipeline) CountShard(outcome string) { m.shardsTotal.WithLabelValues(outcome).Inc() }

// AddBudget moves the in-flight byte gauge; negative releases
func (m *Pipeline) AddBudget(n int64) { m.budgetBytes.Add(float64(n)) }

// AddDocuments counts documents and text bytes for a language
func (m *Pipeline) AddDocuments(lang string, docs, bytes int64) {
	m.documents.WithLabelValues(lang).Add(float64(docs))
	m.documentBytes.WithLabelValues(lang).Add(float64(bytes))
}

// AddRejected counts filtered documents for a stage and reason
func (m *Pipeline) AddRejected(stage, reason string, n int64) {
	m.rejected.WithLabelValues(stage, reason).Add(float64(n))
}

// AddMalformed counts skipped records
func (m *Pipeline) AddMalformed(n int64) { m.malformed.Add(float64(n)) }

// Fetch counts a source fetch result and downloaded bytes
func (m *Pipeline) Fetch(result string, downloaded int64) {
	m.fetches.WithLabelValues(result).Inc()
	if downloaded > 0 {
		m.fetchBytes.Add(float64(downloaded))
	}
}

// BreakerState publishes a breaker transition
func (m *Pipeline) BreakerState(name string, state int) {
	m.breakerState.WithLabelValues(name).Set(float64(state))
}

// Rebuilt counts a language's final corpus documents and duplicates
func (m *Pipeline) Rebuilt(lang string, docs, dups int64) {
	m.rebuildDocs.WithLabelValues(lang).Add(float64(docs))
	m.rebuildDups.WithLabelValues(lang).Add(float64(dups))
}
