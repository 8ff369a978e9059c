package resilience

import (
	"errors"
	"time"

	"github.com/meshcall/controlplane/internal/apperror"
	"github.com/sony/gobreaker"
)

// Default breaker thresholds per spec §4.11.
const (
	DefaultFailureThreshold = 5
	DefaultMonitorWindow    = 10 * time.Second
	DefaultResetTimeout     = 60 * time.Second
	DefaultTrialRequests    = 2
)

// StateChangeFunc is notified whenever the breaker transitions state; wired
// to metrics.CircuitBreakerState the way bus/redis.go wires
// gobreaker.Settings.OnStateChange.
type StateChangeFunc func(name string, from, to string)

// Breaker wraps a gobreaker circuit breaker with the settings shape this
// corpus uses for both the remote state store and the media-engine
// adapter's outbound calls: open after DefaultFailureThreshold consecutive
// failures observed within DefaultMonitorWindow, half-open trial of
// DefaultTrialRequests after DefaultResetTimeout.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker constructs a Breaker named name. onStateChange may be nil.
func NewBreaker(name string, onStateChange StateChangeFunc) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: DefaultTrialRequests,
		Interval:    DefaultMonitorWindow,
		Timeout:     DefaultResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= DefaultFailureThreshold
		},
	}
	if onStateChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			onStateChange(name, from.String(), to.String())
		}
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Name returns the breaker's configured name.
func (b *Breaker) Name() string { return b.cb.Name() }

// State returns the breaker's current state as a string.
func (b *Breaker) State() string { return b.cb.State().String() }

// Execute runs fn through the breaker. When the breaker is open or the
// half-open trial quota is exhausted, it returns an apperror of kind
// CircuitOpen without calling fn.
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, apperror.Wrap(apperror.CircuitOpen, "circuit breaker open for "+b.cb.Name(), err)
		}
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	return res.(T), nil
}
