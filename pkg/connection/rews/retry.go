package rews

import (
	"errors"
	"math"
	"math/rand"
	"time"
)

const (
	// DefaultMaxAttempts bounds automatic reconnection.
	DefaultMaxAttempts = 5
	// DefaultRetryDelay is the fixed delay between reconnection attempts.
	DefaultRetryDelay = time.Second
)

// ErrRetriesExhausted is logged when the retryer allows no further attempt.
var ErrRetriesExhausted = errors.New("reconnection retries exhausted")

// Retryer decides whether and when to make the next reconnection attempt.
type Retryer interface {
	// NextDelay returns the delay before attempt (0-based) and whether to
	// make it at all.
	NextDelay(attempt int, lastErr error) (time.Duration, bool)

	// Reset is called after a successful reconnect.
	Reset()
}

// FixedDelayRetryer waits the same Delay before each attempt.
type FixedDelayRetryer struct {
	Delay time.Duration

	// MaxRetries is the maximum number of attempts; 0 retries forever.
	MaxRetries int
}

func NewFixedDelayRetryer(delay time.Duration, maxRetries int) *FixedDelayRetryer {
	return &FixedDelayRetryer{
		Delay:      delay,
		MaxRetries: maxRetries,
	}
}

// DefaultRetryer returns the reconnect policy used when none is configured:
// five attempts one second apart.
func DefaultRetryer() *FixedDelayRetryer {
	return NewFixedDelayRetryer(DefaultRetryDelay, DefaultMaxAttempts)
}

func (r *FixedDelayRetryer) NextDelay(attempt int, _ error) (time.Duration, bool) {
	if r.MaxRetries > 0 && attempt >= r.MaxRetries {
		return 0, false
	}
	return r.Delay, true
}

func (r *FixedDelayRetryer) Reset() {}

// ExponentialBackoffRetryer grows the delay by Multiplier per attempt,
// capped at MaxDelay, with optional jitter.
type ExponentialBackoffRetryer struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// MaxRetries is the maximum number of attempts; 0 retries forever.
	MaxRetries int

	// JitterFactor is the maximum jitter as a fraction of the delay (0.0 to 1.0).
	// Zero disables jitter.
	JitterFactor float64
}

func NewExponentialBackoffRetryer() *ExponentialBackoffRetryer {
	return &ExponentialBackoffRetryer{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxRetries:   DefaultMaxAttempts,
		JitterFactor: 0.2,
	}
}

func (r *ExponentialBackoffRetryer) NextDelay(attempt int, _ error) (time.Duration, bool) {
	if r.MaxRetries > 0 && attempt >= r.MaxRetries {
		return 0, false
	}

	delay := math.Min(
		float64(r.InitialDelay)*math.Pow(r.Multiplier, float64(attempt)),
		float64(r.MaxDelay),
	)

	if r.JitterFactor > 0 {
		//nolint:gosec // jitter is not security sensitive
		delay += delay * r.JitterFactor * (2*rand.Float64() - 1)
		if delay < 0 {
			delay = float64(r.InitialDelay)
		}
	}

	return time.Duration(delay), true
}

func (r *ExponentialBackoffRetryer) Reset() {}
