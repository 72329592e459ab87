package crawler

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy computes backoff delays and retry eligibility for failed
// fetch attempts. Delays grow exponentially with uniform jitter and a
// hard cap; only transient kinds are retried.
type RetryPolicy struct {
	Tries      int           // total attempts, including the first
	BaseDelay  time.Duration // delay before the second attempt
	MaxDelay   time.Duration // cap after jitter
	Multiplier float64       // exponential growth factor

	jitter func(max time.Duration) time.Duration // test hook
}

// NewRetryPolicy creates a policy with the given attempt budget.
func NewRetryPolicy(tries int, base, max time.Duration, multiplier float64) *RetryPolicy {
	if tries < 1 {
		tries = 1
	}
	if multiplier < 1 {
		multiplier = 1
	}
	return &RetryPolicy{
		Tries:      tries,
		BaseDelay:  base,
		MaxDelay:   max,
		Multiplier: multiplier,
		jitter: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(max)))
		},
	}
}

// ShouldRetry reports whether another attempt is warranted after the
// given 1-based attempt number failed with kind.
func (p *RetryPolicy) ShouldRetry(attempt int, kind ErrorKind) bool {
	if attempt >= p.Tries {
		return false
	}
	return kind.Retryable()
}

// BackoffDelay returns the delay before the given 1-based attempt is
// retried: base * multiplier^(attempt-1) plus uniform jitter in
// [0, delay/2), capped at MaxDelay.
func (p *RetryPolicy) BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	delay += p.jitter(delay / 2)
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}
