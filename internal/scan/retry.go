package scan

import (
	"context"
	"fmt"
	"time"
)

// Retry calls fn up to attempts times, waiting interval between calls, until
// fn reports ok. An error from fn stops the loop immediately. When every
// attempt comes back not-ok Retry returns the zero value, false and nil.
func Retry[T any](
	ctx context.Context,
	attempts int,
	interval time.Duration,
	fn func(context.Context) (T, bool, error),
) (T, bool, error) {
	var zero T
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		v, ok, err := fn(ctx)
		if err != nil {
			return zero, false, err
		}
		if ok {
			return v, true, nil
		}
		if i < attempts-1 {
			if err := sleep(ctx, interval); err != nil {
				return zero, false, err
			}
		}
	}
	return zero, false, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
