package util

import (
	"context"
	"time"
)

// ContextSleep blocks for d or until ctx is done, whichever comes first.
// Returns ctx.Err() if the context was cancelled.
func ContextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
