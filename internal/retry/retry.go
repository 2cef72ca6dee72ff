// Package retry retries operations that failed on per-patient lock
// contention. Every other error is returned on the first attempt.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dmitrijs2005/patterm/internal/common"
)

// Policy bounds the retry loop.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     4,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

// Notify is called before each retry with the error and the wait.
type Notify func(err error, wait time.Duration)

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	eb.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

// Do runs fn until it succeeds, fails with a non-retryable error, the
// attempts are used up or ctx is done. The last error is returned as is.
func Do[T any](ctx context.Context, p Policy, notify Notify, fn func(ctx context.Context) (T, error)) (T, error) {
	op := func() (T, error) {
		v, err := fn(ctx)
		if err != nil && !common.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	var n backoff.Notify
	if notify != nil {
		n = backoff.Notify(notify)
	}

	return backoff.RetryNotifyWithData(op, p.backOff(ctx), n)
}
