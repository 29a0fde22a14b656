package retry

import (
	"time"

	"github.com/vietddude/pricewatch/internal/core/domain"
)

// DelayFunc returns how long to wait after the given (1-based) attempt failed.
type DelayFunc func(attempt int) time.Duration

// Linear waits step * attempt.
func Linear(step time.Duration) DelayFunc {
	return func(attempt int) time.Duration {
		return step * time.Duration(attempt)
	}
}

// Fixed always waits d.
func Fixed(d time.Duration) DelayFunc {
	return func(int) time.Duration {
		return d
	}
}

// Policy defines retry behavior per failure kind. Kinds without an entry in
// Delays are terminal and never retried.
type Policy struct {
	MaxAttempts int
	Delays      map[domain.FailureKind]DelayFunc
}

// DefaultPolicy is the schedule the price API tolerates: 3 attempts, rate
// limits back off 30s per attempt, outages wait a minute, network errors back
// off 10s per attempt.
func DefaultPolicy() Policy {
	return NewPolicy(3, 30*time.Second, 60*time.Second, 10*time.Second)
}

// NewPolicy builds the standard policy with custom timings.
func NewPolicy(maxAttempts int, rateLimitedStep, unavailableDelay, networkStep time.Duration) Policy {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return Policy{
		MaxAttempts: maxAttempts,
		Delays: map[domain.FailureKind]DelayFunc{
			domain.FailureRateLimited:        Linear(rateLimitedStep),
			domain.FailureServiceUnavailable: Fixed(unavailableDelay),
			domain.FailureTransientNetwork:   Linear(networkStep),
		},
	}
}

// Retryable reports whether a failure of this kind may be retried at all.
func (p Policy) Retryable(kind domain.FailureKind) bool {
	_, ok := p.Delays[kind]
	return ok
}

// Delay returns the wait before the next attempt after attempt failed with
// kind. ok is false when the kind is terminal or attempts are exhausted; there
// is no wait after the final attempt.
func (p Policy) Delay(kind domain.FailureKind, attempt int) (time.Duration, bool) {
	fn, ok := p.Delays[kind]
	if !ok {
		return 0, false
	}
	if attempt >= p.MaxAttempts {
		return 0, false
	}
	return fn(attempt), true
}
