package store

import (
	"path/filepath"
	"time"

	"github.com/oscar-project/ungoliant/internal/platform/config"
	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
)

// Driver selects the checkpoint backend
type Driver string

const (
	DriverNone   Driver = ""
	DriverSQLite Driver = "sqlite"
	DriverPG     Driver = "pg"
)

// Dialect names the engine behind Store.SQL
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectPG     Dialect = "pg"
)

// Config aggregates per backend configuration
type Config struct {
	AppName string
	Version string
	Driver  Driver

	PG     PGConfig
	SQLite SQLiteConfig
	CH     CHConfig
}

// PGConfig configures postgres connectivity and tracing
type PGConfig struct {
	URL         string
	MaxConns    int32
	LogSQL      bool
	SlowQueryMs int

	ConnectRetries int           // default 20
	PingTimeout    time.Duration // default 3s
}

// SQLiteConfig configures the embedded checkpoint database
type SQLiteConfig struct {
	Path         string
	BusyTimeout  time.Duration
	MaxOpenConns int
	LogSQL       bool
	SlowQueryMs  int
}

// CHConfig configures clickhouse connectivity
type CHConfig struct {
	Enabled     bool
	URL         string
	DialTimeout time.Duration
}

// FromConfig reads SERVICE_CHECKPOINT_DRIVER, SERVICE_SQLITE_*, SERVICE_PGSQL_* and SERVICE_CLICKHOUSE_*.
// The sqlite path defaults to checkpoint.db under dir
func FromConfig(cfg config.Conf, dir string) Config {
	sq := cfg.Prefix("SERVICE_SQLITE_")
	pg := cfg.Prefix("SERVICE_PGSQL_")
	ch := cfg.Prefix("SERVICE_CLICKHOUSE_")

	out := Config{
		AppName: "ungoliant",
		Driver:  Driver(cfg.MayEnum("SERVICE_CHECKPOINT_DRIVER", string(DriverSQLite), string(DriverSQLite), string(DriverPG))),
		SQLite: SQLiteConfig{
			Path:         sq.MayString("PATH", filepath.Join(dir, "checkpoint.db")),
			BusyTimeout:  sq.MayDuration("BUSY_TIMEOUT", 5*time.Second),
			MaxOpenConns: sq.MayInt("MAX_OPEN_CONNS", 1),
			LogSQL:       sq.MayBool("LOG_SQL", false),
			SlowQueryMs:  sq.MayInt("SLOW_MS", 500),
		},
		CH: CHConfig{
			Enabled:     ch.MayBool("ENABLED", false),
			URL:         ch.MayString("DBURL", ""),
			DialTimeout: ch.MayDuration("DIAL_TIMEOUT", 5*time.Second),
		},
	}
	if out.Driver == DriverPG {
		out.PG = PGConfig{
			URL:         pg.MustString("DBURL"),
			MaxConns:    int32(pg.MayInt("MAX_CONNS", 8)),
			LogSQL:      pg.MayBool("LOG_SQL", false),
			SlowQueryMs: pg.MayInt("SLOW_MS", 500),
		}
	}
	return out
}

// Validate rejects combinations Open cannot serve
func (c Config) Validate() error {
	if c.CH.Enabled && c.CH.URL == "" {
		return perr.WithField(perr.Configf("SERVICE_CLICKHOUSE_ENABLED needs SERVICE_CLICKHOUSE_DBURL"), "SERVICE_CLICKHOUSE_DBURL")
	}
	if c.Driver == DriverSQLite && c.SQLite.Path == "" {
		return perr.WithField(perr.Configf("sqlite checkpoint needs a path"), "SERVICE_SQLITE_PATH")
	}
	return nil
}
