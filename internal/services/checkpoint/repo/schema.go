package repo

import (
	"context"
	_ "embed"
	"strings"

	"github.com/oscar-project/ungoliant/internal/modkit/repokit"
	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
)

//go:embed schema/checkpoint.sql
var schemaSQL string

// Statements strips comment lines and splits the schema into single statements;
// pgx prepares each one separately
func Statements() []string {
	var b strings.Builder
	for _, line := range strings.Split(schemaSQL, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	var out []string
	for _, s := range strings.Split(b.String(), ";") {
		if stmt := strings.TrimSpace(s); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// Migrate applies the schema; every statement is idempotent
func Migrate(ctx context.Context, q repokit.Queryer) error {
	for _, stmt := range Statements() {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return perr.Wrap(err, perr.ErrorCodeDB, "apply checkpoint schema")
		}
	}
	return nil
}
