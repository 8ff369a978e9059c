// Package resilience wraps outbound calls to the media-engine adapter and
// the remote state store with the timeout, circuit-breaker, and retry
// utilities spec §4.11 requires (component N).
package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/meshcall/controlplane/internal/apperror"
)

// WithTimeout bounds fn by d, returning an apperror of kind
// apperror.Timeout whose message names operation and d if the deadline is
// exceeded before fn completes. fn must respect ctx cancellation; resilience cannot forcibly
// abort work fn has already started, only stop waiting for it.
func WithTimeout[T any](ctx context.Context, d time.Duration, operation string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(callCtx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-callCtx.Done():
		return zero, apperror.New(apperror.Timeout, fmt.Sprintf("%s exceeded deadline of %s", operation, d))
	}
}
