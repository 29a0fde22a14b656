// Package retry runs an operation under a Policy that maps failure kinds to
// waits, on top of cenkalti/backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vietddude/pricewatch/internal/core/domain"
)

// Operation is one attempt. attempt starts at 1.
type Operation func(ctx context.Context, attempt int) error

// NotifyFunc is called before each wait with the failed attempt number.
type NotifyFunc func(attempt int, err error, wait time.Duration)

// Result describes how a Do call ended.
type Result struct {
	Attempts  int
	Exhausted bool // the last error was retryable but no attempts were left
}

type options struct {
	clock  Clock
	notify NotifyFunc
}

// Option configures Do.
type Option func(*options)

// WithClock sets the clock used for waits.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithNotify registers a callback invoked before each wait.
func WithNotify(fn NotifyFunc) Option {
	return func(o *options) { o.notify = fn }
}

// policyBackOff adapts Policy to backoff.BackOff. The next delay depends on
// the kind of the last error, which the operation wrapper records.
type policyBackOff struct {
	policy  Policy
	attempt int
	lastErr error
}

func (b *policyBackOff) NextBackOff() time.Duration {
	d, ok := b.policy.Delay(domain.KindOf(b.lastErr), b.attempt)
	if !ok {
		return backoff.Stop
	}
	return d
}

func (b *policyBackOff) Reset() {}

// Do executes op until it succeeds, fails with a terminal kind, or the policy
// runs out of attempts. The returned error is the last error from op, or the
// context error if ctx ended while waiting.
func Do(ctx context.Context, policy Policy, op Operation, opts ...Option) (Result, error) {
	o := options{clock: SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	b := &policyBackOff{policy: policy}
	operation := func() error {
		b.attempt++
		err := op(ctx, b.attempt)
		b.lastErr = err
		if err != nil && !policy.Retryable(domain.KindOf(err)) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		if o.notify != nil {
			o.notify(b.attempt, err, wait)
		}
	}

	err := backoff.RetryNotifyWithTimer(operation, backoff.WithContext(b, ctx), notify, o.clock.NewTimer())

	res := Result{Attempts: b.attempt}
	if err != nil && ctx.Err() == nil && policy.Retryable(domain.KindOf(err)) {
		res.Exhausted = true
	}
	return res, err
}
