package utils

import (
	"context"
	"time"
)

// ContextSleep blocks for d or until ctx is done. It returns nil when the
// sleep was interrupted.
func ContextSleep(ctx context.Context, d time.Duration) *time.Time {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return nil
	case t := <-timer.C:
		return &t
	}
}

// RetryWithDelay calls f until it succeeds or ctx is done, sleeping delay
// between attempts. onErr is notified about every failed attempt.
func RetryWithDelay(ctx context.Context, delay time.Duration, f func(ctx context.Context) error, onErr func(attempt int, err error)) error {
	for attempt := 1; ; attempt++ {
		err := f(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if onErr != nil {
			onErr(attempt, err)
		}
		if ContextSleep(ctx, delay) == nil {
			return ctx.Err()
		}
	}
}
