package retry

import (
	"math"
	"time"
)

// Mode selects how the delay between attempts grows.
type Mode int

const (
	// ModeExponential sleeps backoffFactor * 2^(attempt-1) between attempts.
	ModeExponential Mode = iota
	// ModeFixed always sleeps backoffFactor between attempts.
	ModeFixed
)

// Policy computes per-attempt delays for callers that drive their own retry
// loop (connection recovery, message resend). Unlike WithExponentialBackoff
// it never sleeps itself.
type Policy struct {
	// Total is the number of retries to allow. 0 disables retrying.
	Total int

	// BackoffFactor is the base delay. In exponential mode the delay for
	// attempt n is BackoffFactor * 2^(n-1), in fixed mode it is always
	// BackoffFactor.
	BackoffFactor time.Duration

	// BackoffMax caps the computed delay.
	BackoffMax time.Duration

	Mode Mode
}

// NextRetryDelay returns the delay to wait before the given attempt
// (1-based). ok is false when the policy is exhausted and the caller should
// give up.
func (p Policy) NextRetryDelay(attempt int) (delay time.Duration, ok bool) {
	if attempt <= 0 || attempt > p.Total {
		return 0, false
	}
	switch p.Mode {
	case ModeFixed:
		delay = p.BackoffFactor
	default:
		delay = time.Duration(float64(p.BackoffFactor) * math.Pow(2, float64(attempt-1)))
	}
	if p.BackoffMax > 0 && delay > p.BackoffMax {
		delay = p.BackoffMax
	}
	return delay, true
}
