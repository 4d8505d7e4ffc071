// Package natsbus publishes pipeline events (shard finished, corpus built) to NATS
package natsbus

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/platform/logger"

	"github.com/nats-io/nats.go"
)

// Event kinds
const (
	KindShardDone   = "shard.done"
	KindShardFailed = "shard.failed"
	KindCorpusBuilt = "corpus.built"
	KindRunFinished = "run.finished"
)

// Event is the JSON envelope on the wire
type Event struct {
	Kind  string    `json:"kind"`
	RunID string    `json:"run_id,omitempty"`
	At    time.Time `json:"at"`
	Data  any       `json:"data"`
}

// Options configure the connection
type Options struct {
	URL            string
	Prefix         string
	Name           string
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

// conn is the subset of *nats.Conn the bus uses
type conn interface {
	Publish(subj string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// Bus publishes events under Prefix.<kind>
type Bus struct {
	nc     conn
	prefix string
	now    func() time.Time
}

var connect = func(url string, opts ...nats.Option) (conn, error) { return nats.Connect(url, opts...) }

// Connect dials NATS; reconnects are handled by the client
func Connect(o Options) (*Bus, error) {
	if strings.TrimSpace(o.URL) == "" {
		return nil, perr.Configf("nats url is empty")
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 2 * time.Second
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = 2 * time.Second
	}
	if o.MaxReconnects == 0 {
		o.MaxReconnects = 60
	}
	if o.Name == "" {
		o.Name = "ungoliant"
	}
	log := logger.Named("natsbus")
	nc, err := connect(o.URL,
		nats.Name(o.Name),
		nats.Timeout(o.ConnectTimeout),
		nats.ReconnectWait(o.ReconnectWait),
		nats.MaxReconnects(o.MaxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeUnavailable, "connect nats")
	}
	return newBus(nc, o.Prefix), nil
}

func newBus(nc conn, prefix string) *Bus {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = "ungoliant"
	}
	return &Bus{nc: nc, prefix: prefix, now: time.Now}
}

// Subject returns the subject a kind is published on
func (b *Bus) Subject(kind string) string { return b.prefix + "." + kind }

// Publish sends one event; the run id comes from ctx
func (b *Bus) Publish(ctx context.Context, kind string, data any) error {
	payload, err := json.Marshal(Event{Kind: kind, RunID: logger.RunID(ctx), At: b.now().UTC(), Data: data})
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "encode %s event", kind)
	}
	if err := b.nc.Publish(b.Subject(kind), payload); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "publish %s", kind)
	}
	return nil
}

// Close flushes pending messages and closes the connection
func (b *Bus) Close() error {
	if b == nil || b.nc == nil {
		return nil
	}
	err := b.nc.FlushTimeout(5 * time.Second)
	b.nc.Close()
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeUnavailable, "flush nats")
	}
	return nil
}
