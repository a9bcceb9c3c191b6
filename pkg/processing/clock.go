package processing

import (
	"context"

	"github.com/jonboulle/clockwork"
)

type clockContextKey struct{}

// ContextWithClock attaches clock to ctx so add_row_loaded_date can be
// tested against a fake clock the same way pkg/retry is.
func ContextWithClock(ctx context.Context, clock clockwork.Clock) context.Context {
	return context.WithValue(ctx, clockContextKey{}, clock)
}

func clockFromContext(ctx context.Context) clockwork.Clock {
	if clock, ok := ctx.Value(clockContextKey{}).(clockwork.Clock); ok {
		return clock
	}
	return clockwork.NewRealClock()
}
