package doctxn

import (
	"math"
	"time"

	"github.com/sethvargo/go-retry"
)

// newBackoff returns the delay source for retries. The n-th call to Next (n from 1)
// returns BaseDelay * 2^n, i.e. the delay before the attempt following n attempts made.
// No jitter is applied; MaxDelay, when set, caps each delay.
func newBackoff(o Options) retry.Backoff {
	var b retry.Backoff
	if o.BaseDelay <= 0 {
		b = retry.BackoffFunc(func() (time.Duration, bool) {
			return 0, false
		})
	} else {
		// NewExponential yields base, 2*base, 4*base... so start from 2*BaseDelay.
		// It saturates at math.MaxInt64 on overflow; so does the doubled base.
		base := time.Duration(math.MaxInt64)
		if o.BaseDelay <= math.MaxInt64/2 {
			base = 2 * o.BaseDelay
		}
		b = retry.NewExponential(base)
	}
	if o.MaxDelay > 0 {
		b = retry.WithCappedDuration(o.MaxDelay, b)
	}
	return b
}

// Delays lists the backoff delays a transaction with options o waits before each retry,
// i.e. MaxAttempts-1 values. Useful to reason about worst case latency of a policy.
func Delays(o Options) []time.Duration {
	if o.MaxAttempts <= 1 {
		return nil
	}
	b := newBackoff(o)
	delays := make([]time.Duration, 0, o.MaxAttempts-1)
	for i := 1; i < o.MaxAttempts; i++ {
		d, stop := b.Next()
		if stop {
			break
		}
		delays = append(delays, d)
	}
	return delays
}
