package notify

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"cuckoo/internal/reminder"
)

// Limited wraps a dispatcher with a token-bucket rate limit and a per-call
// timeout. Both can be changed while in use.
type Limited struct {
	next    Driver
	lim     *rate.Limiter
	timeout atomic.Int64
}

// Limit wraps d. perSec <= 0 disables rate limiting; timeout <= 0 disables
// the per-call deadline.
func Limit(d Driver, perSec float64, burst int, timeout time.Duration) *Limited {
	l := &Limited{next: d, lim: rate.NewLimiter(rate.Inf, 1)}
	l.Apply(perSec, burst, timeout)
	return l
}

// Apply swaps the rate and timeout at runtime.
func (l *Limited) Apply(perSec float64, burst int, timeout time.Duration) {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if perSec > 0 {
		limit = rate.Limit(perSec)
	}
	l.lim.SetLimit(limit)
	l.lim.SetBurst(burst)
	l.timeout.Store(int64(timeout))
}

func (l *Limited) Name() string { return l.next.Name() }

// Driver returns the wrapped driver.
func (l *Limited) Driver() Driver { return l.next }

func (l *Limited) Notify(ctx context.Context, rem *reminder.Reminder, p reminder.Payload) (reminder.Response, error) {
	if err := l.lim.Wait(ctx); err != nil {
		return reminder.Response{}, fmt.Errorf("notify rate limit: %w", err)
	}
	if d := time.Duration(l.timeout.Load()); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return l.next.Notify(ctx, rem, p)
}
