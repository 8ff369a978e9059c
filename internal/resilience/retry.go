package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Default retry tuning per spec §4.11 (signaling connection establishment
// and the client-side mirror's reconnect loop only — never for in-session
// handler calls).
const (
	DefaultRetryBase              = 1 * time.Second
	DefaultRetryFactor            = 2.0
	DefaultRetryCap               = 30 * time.Second
	DefaultRetryRandomizationFrac = 0.10
)

// RetryConnect retries fn with exponential backoff (base 1s, factor 2, cap
// 30s, jitter ±10%) until it succeeds, ctx is cancelled, or maxElapsed has
// passed. A zero maxElapsed means retry indefinitely until ctx is done.
func RetryConnect(ctx context.Context, maxElapsed time.Duration, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = DefaultRetryBase
	b.Multiplier = DefaultRetryFactor
	b.MaxInterval = DefaultRetryCap
	b.RandomizationFactor = DefaultRetryRandomizationFrac

	opts := []backoff.RetryOption{backoff.WithBackOff(b)}
	if maxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(maxElapsed))
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, fn()
	}, opts...)
	return err
}
