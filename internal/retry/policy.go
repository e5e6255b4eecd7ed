// Package retry decides whether and when a failed page fetch is attempted again.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/dealmungchi/dealcrawler/pkg/errors"
)

// Policy configures retry behavior
type Policy struct {
	// Attempts is the number of retries after the first call
	Attempts int
	// BaseDelay is the wait before the first retry
	BaseDelay time.Duration
	// Multiplier is the exponential backoff factor (values below 1 mean 1)
	Multiplier float64
	// MaxDelay caps a single backoff; zero means uncapped
	MaxDelay time.Duration
}

// Delay returns BaseDelay * Multiplier^attempt, attempt counting from 0
func (p Policy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	mult := math.Max(p.Multiplier, 1)
	d := float64(p.BaseDelay) * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Next reports whether err after the given attempt (0 for the first retry
// decision) should be retried, and how long to wait first. Errors tagged
// permanent never retry.
func (p Policy) Next(attempt int, err error) (time.Duration, bool) {
	if err == nil || errors.IsPermanent(err) || attempt >= p.Attempts {
		return 0, false
	}
	return p.Delay(attempt), true
}

// Sleep waits for d or until ctx is done. It returns ctx.Err() when cut short.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
