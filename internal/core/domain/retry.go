package domain

import (
	"fmt"
	"time"
)

// RetryPolicy is a bounded exponential backoff policy for external calls.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt.
	BaseDelay time.Duration

	// Multiplier grows the delay after each failed attempt.
	Multiplier float64

	// MaxDelay caps a single wait. Zero means no cap.
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns the policy used for embedding calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2.0,
		MaxDelay:    10 * time.Second,
	}
}

// Validate checks the policy values.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: retry max attempts must be at least 1, got %d", ErrInvalidConfiguration, p.MaxAttempts)
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("%w: retry delays must not be negative", ErrInvalidConfiguration)
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("%w: retry multiplier must be at least 1, got %v", ErrInvalidConfiguration, p.Multiplier)
	}
	return nil
}

// Delay returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && time.Duration(d) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(d)
}
