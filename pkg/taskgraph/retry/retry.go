package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Policy configures retry behavior.
type Policy struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// BackoffFactor multiplies the backoff after each attempt.
	BackoffFactor float64

	// Jitter is the random jitter factor (0.0-1.0).
	Jitter float64

	// Retryable overrides IsRetryable when set.
	Retryable func(error) bool

	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Default is the policy for calls to completion providers.
var Default = Policy{
	MaxAttempts:    3,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// Never disables retries.
var Never = Policy{MaxAttempts: 1}

// Option adjusts a Policy.
type Option func(*Policy)

// WithMaxAttempts sets the maximum number of attempts.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) { p.MaxAttempts = n }
}

// WithBackoff sets the initial and maximum backoff.
func WithBackoff(initial, maxBackoff time.Duration) Option {
	return func(p *Policy) {
		p.InitialBackoff = initial
		p.MaxBackoff = maxBackoff
	}
}

// WithJitter sets the jitter factor.
func WithJitter(j float64) Option {
	return func(p *Policy) { p.Jitter = j }
}

// WithRetryable sets a custom retryability check.
func WithRetryable(fn func(error) bool) Option {
	return func(p *Policy) { p.Retryable = fn }
}

// WithOnRetry sets the retry callback.
func WithOnRetry(fn func(attempt int, err error, wait time.Duration)) Option {
	return func(p *Policy) { p.OnRetry = fn }
}

// NewPolicy returns Default with opts applied.
func NewPolicy(opts ...Option) Policy {
	p := Default
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// run out or ctx is done. Failures come back as *Error carrying the category
// and attempt count. A cancelled ctx is returned unwrapped so callers can
// match it with errors.Is.
func Do[T any](ctx context.Context, p Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(p.MaxAttempts, 1)
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}
	backoff := p.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, err
		}
		if !retryable(err) {
			return zero, &Error{Err: err, Category: Categorize(err), Attempts: attempt, Op: op}
		}
		if attempt == attempts {
			break
		}

		wait := withJitter(backoff, p.Jitter)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * p.BackoffFactor)
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}

	return zero, &Error{Err: lastErr, Category: Categorize(lastErr), Attempts: attempts, Op: op}
}

// withJitter returns base +/- (base * jitter * random).
func withJitter(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || base <= 0 {
		return base
	}
	delta := float64(base) * jitter * (rand.Float64()*2 - 1)
	return time.Duration(float64(base) + delta)
}
