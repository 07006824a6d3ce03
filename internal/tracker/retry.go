package tracker

import (
	"context"
	"time"
)

// MaxRetriesLimit caps RetryPolicy.MaxRetries.
const MaxRetriesLimit = 2

// RetryPolicy is the bounded retry applied to each backend call.
// The zero value performs a single attempt.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

func (p RetryPolicy) attempts() int {
	n := p.MaxRetries
	if n < 0 {
		n = 0
	}
	if n > MaxRetriesLimit {
		n = MaxRetriesLimit
	}
	return n + 1
}

// Do runs fn until it succeeds, the attempts run out or ctx is done.
// Backoff doubles after each failed attempt.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := retryValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func retryValue[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		v   T
		err error
	)
	wait := p.Backoff
	total := p.attempts()

	for attempt := 1; attempt <= total; attempt++ {
		v, err = fn(ctx)
		if err == nil || attempt == total {
			return v, err
		}
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return v, err
			case <-timer.C:
			}
			wait *= 2
		}
	}
	return v, err
}
