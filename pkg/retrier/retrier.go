// Package retrier reruns a call with exponential backoff and jitter.
//
// coinbook retries whole tool invocations from the CLI, never single remote calls.
// Pair it with a predicate so only failures worth repeating are retried:
//
//	r := retrier.New(
//		retrier.WithMaxRetries(cfg.Retry.MaxRetries),
//		retrier.WithRetryIf(errs.IsTransient),
//	)
//
// Upserts are idempotent, so rerunning an aborted batch rewrites the rows it already
// wrote instead of duplicating them.
package retrier

import (
	"context"
	"math/rand"
	"time"
)

const (
	defaultInitialInterval = 1 * time.Second
	defaultMaxInterval     = 30 * time.Second
	defaultMultiplier      = 2.0
	defaultMaxRetries      = 5
	defaultJitter          = 0.1
)

// Retrier holds a backoff policy. It is safe for concurrent use once built.
type Retrier struct {
	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64
	maxRetries      int
	jitter          float64
	retryIf         func(error) bool
	onRetry         func(attempt int, err error)
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithInitialInterval sets the wait before the first retry.
func WithInitialInterval(d time.Duration) Option {
	return func(r *Retrier) {
		r.initialInterval = d
	}
}

// WithMaxInterval caps the wait between two attempts.
func WithMaxInterval(d time.Duration) Option {
	return func(r *Retrier) {
		r.maxInterval = d
	}
}

// WithMultiplier sets the growth factor of the wait.
func WithMultiplier(m float64) Option {
	return func(r *Retrier) {
		r.multiplier = m
	}
}

// WithMaxRetries sets how many times a failed call is repeated. Zero disables retries.
func WithMaxRetries(n int) Option {
	return func(r *Retrier) {
		r.maxRetries = n
	}
}

// WithJitter spreads each wait by up to ±j of its length (0.0 to 1.0).
func WithJitter(j float64) Option {
	return func(r *Retrier) {
		r.jitter = j
	}
}

// WithRetryIf limits retries to errors accepted by fn. Other errors are returned at once.
func WithRetryIf(fn func(error) bool) Option {
	return func(r *Retrier) {
		r.retryIf = fn
	}
}

// WithOnRetry registers a hook called before each retry with the attempt number and the last error.
func WithOnRetry(fn func(attempt int, err error)) Option {
	return func(r *Retrier) {
		r.onRetry = fn
	}
}

// New creates a Retrier. Unset values fall back to 5 retries starting at 1s, doubling up to 30s.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		multiplier:      defaultMultiplier,
		maxRetries:      defaultMaxRetries,
		jitter:          defaultJitter,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.maxInterval > 0 && r.initialInterval > r.maxInterval {
		r.initialInterval = r.maxInterval
	}
	return r
}

// Do calls fn until it succeeds, returns a non-retryable error, the retries run out
// or ctx is done. The last error of fn is returned, or ctx.Err() when cancelled while waiting.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	interval := r.initialInterval

	err := fn(ctx)
	for attempt := 1; err != nil && attempt <= r.maxRetries; attempt++ {
		if !r.retryable(err) {
			return err
		}
		if r.onRetry != nil {
			r.onRetry(attempt, err)
		}
		if werr := wait(ctx, r.spread(interval)); werr != nil {
			return werr
		}
		interval = r.next(interval)
		err = fn(ctx)
	}
	return err
}

func (r *Retrier) retryable(err error) bool {
	return r.retryIf == nil || r.retryIf(err)
}

// spread applies jitter to d.
func (r *Retrier) spread(d time.Duration) time.Duration {
	d = time.Duration(float64(d) + (rand.Float64()*2-1)*r.jitter*float64(d))
	if d < 0 {
		return 0
	}
	return d
}

// next grows d by the multiplier, capped at the max interval.
func (r *Retrier) next(d time.Duration) time.Duration {
	d = time.Duration(float64(d) * r.multiplier)
	if r.maxInterval > 0 && d > r.maxInterval {
		return r.maxInterval
	}
	return d
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DoWithData is Do for calls returning a value. The value of the last attempt is returned.
func DoWithData[T any](r *Retrier, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var e error
		result, e = fn(ctx)
		return e
	})
	return result, err
}
