package utils

import (
	"context"
	"time"
)

var defaultRetryDelay = 500 * time.Millisecond

// Retry runs fn up to retries+1 times with a fixed delay between attempts.
// The last error wins. A cancelled context stops further attempts.
func Retry[T any](ctx context.Context, retries int, fn func() (T, error)) (T, error) {
	var (
		zero, result T
		err          error
	)

	timer := time.NewTimer(0)
	<-timer.C

	for i := 0; i <= retries; i++ {
		if cerr := ctx.Err(); cerr != nil {
			return zero, cerr
		}
		result, err = fn()
		if err == nil {
			return result, nil
		}
		if i < retries {
			timer.Reset(defaultRetryDelay)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return zero, err
}
