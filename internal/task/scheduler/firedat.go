package scheduler

import (
	"context"
	"time"
)

type firedAtKey struct{}

// FiredAt returns the instant the trigger that produced ctx fired. Jobs may
// start later than that when the engine is busy.
func FiredAt(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(firedAtKey{}).(time.Time)
	return t, ok
}

func withFiredAt(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, firedAtKey{}, t)
}
