package recovery

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff constants used by the service. Delays below one minute are unreliable
// for browser alarm timers, so the first retry waits a full minute.
const (
	DefaultInitialBackoff = 60 * time.Second
	DefaultMaxBackoff     = 20 * time.Minute
	DefaultJitter         = 20 * time.Second
)

// maxShift keeps 1<<attempt inside int64.
const maxShift = 62

// ExponentialBackoff computes reload delays: min(MaxDelay, InitialDelay*2^retries) plus
// a uniform jitter in [0, Jitter] so tabs failing on the same endpoint don't retry in lockstep.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Jitter       time.Duration

	// JitterFunc returns a value in [0, n]. Nil means a uniform random draw.
	JitterFunc func(n int64) int64
}

// DefaultBackoff returns the strategy the service runs with.
// 60s, 120s, 240s, 480s, 960s, then 1200s forever.
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialDelay: DefaultInitialBackoff,
		MaxDelay:     DefaultMaxBackoff,
		Jitter:       DefaultJitter,
	}
}

// BaseDelay returns the delay for retryCount completed retries, without jitter.
func (s *ExponentialBackoff) BaseDelay(retryCount int) time.Duration {
	return baseDelay(retryCount, s.InitialDelay, s.MaxDelay)
}

// GetDelay returns the full delay for retryCount completed retries and the jitter part of it.
func (s *ExponentialBackoff) GetDelay(retryCount int) (delay, jitter time.Duration) {
	jitter = drawJitter(s.Jitter, s.JitterFunc)
	return s.BaseDelay(retryCount) + jitter, jitter
}

// ComputeDelay is min(maxBackoff, initialBackoff*2^retryCount) plus a uniform draw from [0, jitterMax].
func ComputeDelay(retryCount int, initialBackoff, maxBackoff, jitterMax time.Duration) time.Duration {
	return baseDelay(retryCount, initialBackoff, maxBackoff) + drawJitter(jitterMax, nil)
}

func baseDelay(retryCount int, initial, maxDelay time.Duration) time.Duration {
	if initial <= 0 {
		return 0
	}
	if retryCount < 0 {
		retryCount = 0
	} else if retryCount > maxShift {
		retryCount = maxShift
	}

	multiplier := int64(1) << retryCount
	if int64(initial) > math.MaxInt64/multiplier {
		return maxDelay
	}
	return min(maxDelay, time.Duration(int64(initial)*multiplier))
}

func drawJitter(jitterMax time.Duration, fn func(n int64) int64) time.Duration {
	if jitterMax <= 0 {
		return 0
	}
	n := int64(jitterMax)
	if fn == nil {
		// Inclusive upper bound.
		return time.Duration(rand.Int64N(n + 1))
	}
	return time.Duration(min(max(fn(n), 0), n))
}
