package module

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/oscar-project/ungoliant/internal/modkit"
	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/platform/store"
)

func TestFromConfig(t *testing.T) {
	t.Setenv("SERVICE_CHECKPOINT_STALE_AFTER", "10m")
	o := FromConfig(modkit.Deps{}.Cfg)
	if o.StaleAfter != 10*time.Minute || o.RetryAttempts != 5 || !o.Migrate {
		t.Fatalf("options = %+v", o)
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, modkit.Deps{}); !perr.IsCode(err, perr.ErrorCodeConfig) {
		t.Fatalf("no store err = %v", err)
	}

	st, err := store.Open(ctx, store.Config{
		Driver: store.DriverSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "cp.db")},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close(ctx) })

	m, err := New(ctx, modkit.Deps{Store: st})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cp := m.Ports().(Ports).Checkpoint
	if n, err := cp.Seed(ctx, []string{"a"}); err != nil || n != 1 {
		t.Fatalf("seed = %d, %v", n, err)
	}
}
