package retrier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetrier_Do(t *testing.T) {
	t.Run("success on first attempt", func(t *testing.T) {
		r := New()
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("success after retries", func(t *testing.T) {
		r := New(WithMaxRetries(3), WithInitialInterval(1*time.Millisecond))
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("fail")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("fail after max retries", func(t *testing.T) {
		r := New(WithMaxRetries(2), WithInitialInterval(1*time.Millisecond))
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return errors.New("fail")
		})
		assert.Error(t, err)
		assert.Equal(t, 3, attempts) // 1 initial + 2 retries
	})

	t.Run("non-retryable error stops at once", func(t *testing.T) {
		permanent := errors.New("permanent")
		r := New(
			WithMaxRetries(5),
			WithInitialInterval(1*time.Millisecond),
			WithRetryIf(func(err error) bool { return !errors.Is(err, permanent) }),
		)
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			if attempts == 2 {
				return permanent
			}
			return errors.New("flaky")
		})
		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 2, attempts)
	})

	t.Run("zero retries runs once", func(t *testing.T) {
		var retried []int
		r := New(WithMaxRetries(0), WithOnRetry(func(attempt int, _ error) {
			retried = append(retried, attempt)
		}))
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return errors.New("fail")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, attempts)
		assert.Empty(t, retried)
	})

	t.Run("on retry hook sees attempts", func(t *testing.T) {
		var retried []int
		r := New(WithMaxRetries(2), WithInitialInterval(1*time.Millisecond), WithOnRetry(func(attempt int, _ error) {
			retried = append(retried, attempt)
		}))
		_ = r.Do(context.Background(), func(ctx context.Context) error {
			return errors.New("fail")
		})
		assert.Equal(t, []int{1, 2}, retried)
	})

	t.Run("context cancellation", func(t *testing.T) {
		r := New(WithMaxRetries(5), WithInitialInterval(100*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())

		attempts := 0
		err := r.Do(ctx, func(ctx context.Context) error {
			attempts++
			if attempts == 2 {
				cancel()
			}
			return errors.New("fail")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 2, attempts)
	})
}

func TestRetrier_DoWithData(t *testing.T) {
	t.Run("success returns data", func(t *testing.T) {
		r := New()
		val, err := DoWithData(r, context.Background(), func(ctx context.Context) (string, error) {
			return "success", nil
		})
		assert.NoError(t, err)
		assert.Equal(t, "success", val)
	})

	t.Run("fail returns error", func(t *testing.T) {
		r := New(WithMaxRetries(1), WithInitialInterval(1*time.Millisecond))
		val, err := DoWithData(r, context.Background(), func(ctx context.Context) (string, error) {
			return "", errors.New("fail")
		})
		assert.Error(t, err)
		assert.Empty(t, val)
	})
}

func TestRetrier_Backoff(t *testing.T) {
	r := New(WithInitialInterval(100*time.Millisecond), WithMaxInterval(300*time.Millisecond), WithMultiplier(2), WithJitter(0))

	d := r.initialInterval
	var waits []time.Duration
	for i := 0; i < 4; i++ {
		waits = append(waits, r.spread(d))
		d = r.next(d)
	}
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}, waits)

	t.Run("initial interval capped", func(t *testing.T) {
		r := New(WithInitialInterval(time.Minute), WithMaxInterval(time.Second))
		assert.Equal(t, time.Second, r.initialInterval)
	})

	t.Run("jitter stays within bounds", func(t *testing.T) {
		r := New(WithJitter(0.5))
		for i := 0; i < 100; i++ {
			got := r.spread(time.Second)
			assert.GreaterOrEqual(t, got, 500*time.Millisecond)
			assert.LessOrEqual(t, got, 1500*time.Millisecond)
		}
	})
}
