package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vietddude/pricewatch/internal/core/domain"
)

func failWith(kind domain.FailureKind) error {
	return domain.NewFetchError(kind, 0, "test", nil)
}

func TestPolicy_Delay(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		kind    domain.FailureKind
		attempt int
		want    time.Duration
		ok      bool
	}{
		{domain.FailureRateLimited, 1, 30 * time.Second, true},
		{domain.FailureRateLimited, 2, 60 * time.Second, true},
		{domain.FailureRateLimited, 3, 0, false},
		{domain.FailureServiceUnavailable, 1, 60 * time.Second, true},
		{domain.FailureServiceUnavailable, 2, 60 * time.Second, true},
		{domain.FailureTransientNetwork, 1, 10 * time.Second, true},
		{domain.FailureTransientNetwork, 2, 20 * time.Second, true},
		{domain.FailurePermanent, 1, 0, false},
		{domain.FailureEmptyData, 1, 0, false},
		{domain.FailureUnknown, 1, 0, false},
	}

	for _, tt := range tests {
		got, ok := p.Delay(tt.kind, tt.attempt)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Delay(%s, %d) = %v, %v; want %v, %v", tt.kind, tt.attempt, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	res, err := Do(context.Background(), DefaultPolicy(), func(ctx context.Context, attempt int) error {
		return nil
	}, WithClock(clock))

	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.Exhausted)
	assert.Empty(t, clock.Waits())
}

func TestDo_TransientExhaustsAfterThreeAttempts(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	calls := 0
	res, err := Do(context.Background(), DefaultPolicy(), func(ctx context.Context, attempt int) error {
		calls++
		return failWith(domain.FailureTransientNetwork)
	}, WithClock(clock))

	require.Error(t, err)
	assert.Equal(t, domain.FailureTransientNetwork, domain.KindOf(err))
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, res.Attempts)
	assert.True(t, res.Exhausted)
	assert.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second}, clock.Waits())
}

func TestDo_RateLimitedThenSuccess(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	var notified []int
	res, err := Do(context.Background(), DefaultPolicy(), func(ctx context.Context, attempt int) error {
		if attempt < 3 {
			return failWith(domain.FailureRateLimited)
		}
		return nil
	}, WithClock(clock), WithNotify(func(attempt int, err error, wait time.Duration) {
		notified = append(notified, attempt)
	}))

	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{30 * time.Second, 60 * time.Second}, clock.Waits())
	assert.Equal(t, []int{1, 2}, notified)
}

func TestDo_ServiceUnavailableFixedWait(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	_, err := Do(context.Background(), DefaultPolicy(), func(ctx context.Context, attempt int) error {
		return failWith(domain.FailureServiceUnavailable)
	}, WithClock(clock))

	require.Error(t, err)
	assert.Equal(t, []time.Duration{time.Minute, time.Minute}, clock.Waits())
}

func TestDo_TerminalKindsDoNotRetry(t *testing.T) {
	for _, kind := range []domain.FailureKind{domain.FailurePermanent, domain.FailureEmptyData} {
		clock := NewFakeClock(time.Unix(0, 0))
		calls := 0
		res, err := Do(context.Background(), DefaultPolicy(), func(ctx context.Context, attempt int) error {
			calls++
			return failWith(kind)
		}, WithClock(clock))

		require.Error(t, err)
		assert.Equal(t, kind, domain.KindOf(err), "error must be unwrapped from backoff.Permanent")
		assert.Equal(t, 1, calls)
		assert.False(t, res.Exhausted)
		assert.Empty(t, clock.Waits())
	}
}

func TestDo_UnclassifiedErrorIsTerminal(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), DefaultPolicy(), func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("boom")
	}, WithClock(NewFakeClock(time.Unix(0, 0))))

	assert.EqualError(t, err, "boom")
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, DefaultPolicy(), func(ctx context.Context, attempt int) error {
		calls++
		cancel()
		return failWith(domain.FailureTransientNetwork)
	}, WithClock(NewFakeClock(time.Unix(0, 0))))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestSleep_FakeClockAdvances(t *testing.T) {
	start := time.Unix(100, 0)
	clock := NewFakeClock(start)
	require.NoError(t, Sleep(context.Background(), clock, 2*time.Second))
	assert.Equal(t, start.Add(2*time.Second), clock.Now())
}
