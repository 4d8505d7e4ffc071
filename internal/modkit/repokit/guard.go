package repokit

import (
	"context"
	"time"

	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
)

type guarder interface {
	Guard(context.Context) error
}

// Guard checks a dependency within timeout (5s when ctx has no deadline);
// a missing or failing dependency is Unavailable
func Guard(ctx context.Context, name string, g guarder) error {
	if g == nil {
		return perr.Newf(perr.ErrorCodeUnavailable, "%s: not configured", name)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return perr.WrapIf(g.Guard(ctx), perr.ErrorCodeUnavailable, name+" guard failed")
}
