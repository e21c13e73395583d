package marketdata

import (
	"context"
	"time"
)

// RetryPolicy retries an operation with geometric backoff. With the default
// tuning (3 attempts, 5s base, x2) a failing fetch waits 5s then 10s before
// the second and third attempts. The waits are sized to the provider's rate
// limit, so they are part of the contract rather than an optimization knob.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy matches the provider rate-limit budget the scan
// pacing is tuned against.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 5 * time.Second, Multiplier: 2}
}

// Delay returns the backoff before the given attempt (1-based). The first
// attempt has no delay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := p.BaseDelay
	for i := 2; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
	}
	return d
}

// Do runs fn up to MaxAttempts times, sleeping the backoff schedule between
// attempts. Context cancellation aborts both the wait and any further
// attempts. The last error is returned when all attempts fail.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(p.Delay(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = fn(attempt); err == nil {
			return nil
		}
	}
	return err
}
