// Package polling provides the wait-until-predicate primitive the resolver
// and orchestrator build their cooperative waits on. All waiting in the core
// flows through here so cancellation is observed uniformly.
package polling

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// ErrTimeout is returned when the predicate never held within the budget.
var ErrTimeout = errors.New("polling: condition not met before timeout")

// Predicate reports whether the awaited condition holds. A non-nil error
// aborts the wait immediately.
type Predicate func(ctx context.Context) (bool, error)

// WaitUntil polls pred at a fixed interval until it holds, the timeout
// elapses, or ctx is cancelled. The predicate is evaluated once immediately;
// subsequent evaluations are paced by a rate limiter rather than ad hoc
// timers so bursts after a stall are not possible.
func WaitUntil(ctx context.Context, timeout, interval time.Duration, pred Predicate) error {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	for {
		ok, err := pred(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if err := limiter.Wait(ctx); err != nil {
			// Distinguish the poll deadline from caller cancellation. The
			// limiter also fails eagerly when the next tick would overrun
			// the deadline; that counts as a timeout too.
			if errors.Is(ctx.Err(), context.Canceled) {
				return ctx.Err()
			}
			return ErrTimeout
		}
	}
}

// Sleep blocks for d or until ctx is cancelled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
