package repository

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds the retries of a store call. Only ErrTransient failures are retried.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	OnRetry         func(err error, wait time.Duration)
}

// DefaultRetryPolicy retries three times starting at 50ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxTries: 3, InitialInterval: 50 * time.Millisecond, MaxInterval: time.Second}
}

// Retry runs fn until it succeeds, fails permanently or the policy gives up.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		b.MaxInterval = policy.MaxInterval
	}
	tries := policy.MaxTries
	if tries == 0 {
		tries = 1
	}

	opts := []backoff.RetryOption{backoff.WithBackOff(b), backoff.WithMaxTries(tries)}
	if policy.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(backoff.Notify(policy.OnRetry)))
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := fn(ctx)
		if err != nil && !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)
}

// RetryErr is Retry for calls without a result.
func RetryErr(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	_, err := Retry(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
