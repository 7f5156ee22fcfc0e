package catalog

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter admits at most n calls per period. Calls are spaced evenly
// with a burst of one, so no window of length period sees more than n.
type Limiter struct {
	lim *rate.Limiter
}

func NewLimiter(n int, period time.Duration) *Limiter {
	if n <= 0 {
		n = 1
	}
	return &Limiter{lim: rate.NewLimiter(rate.Every(period/time.Duration(n)), 1)}
}

// Wait blocks until the call is admitted or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r := l.lim.Reserve()
	delay := r.Delay()
	if delay == 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
