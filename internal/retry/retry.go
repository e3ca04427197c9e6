// Package retry re-runs reads that failed with a transient storage error.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"mobilechat/internal/apperrors"
	"mobilechat/internal/config"
)

// Policy bounds how long and how often an operation is retried.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	MaxRetries      uint64
}

// FromConfig builds a Policy from the RETRY config section.
func FromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
		MaxElapsedTime:  cfg.MaxElapsedTime,
		MaxRetries:      cfg.MaxRetries,
	}
}

// None performs a single attempt.
func None() Policy {
	return Policy{MaxRetries: 0, InitialInterval: time.Millisecond}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = p.MaxElapsedTime
	return backoff.WithMaxRetries(backoff.WithContext(eb, ctx), p.MaxRetries)
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// policy is exhausted. Only apperrors.ErrUnavailable is retried.
func Do(ctx context.Context, p Policy, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err == nil || apperrors.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, p.backOff(ctx))
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, func() error {
		v, err := op()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
