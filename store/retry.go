package store

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/guidewire-oss/cda-deltasync/model"
)

// withRetry runs op, retrying transient failures with an exponential
// backoff, at most maxRetries retries after the first attempt (so at most
// maxRetries+1 calls of op). Non-transient errors (including
// permanent and conflict errors) return immediately.
func withRetry(ctx context.Context, maxRetries int, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), uint64(maxRetries)), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !model.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.Multiplier = 2
	return b
}
