package ratelimit

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// spinThreshold is the longest remaining wait a caller will spin through
// before handing its goroutine back to the scheduler.
const spinThreshold = 500 * time.Microsecond

// Limiter throttles outbound requests under two simultaneous constraints: at
// most capacity calls in flight, and at least cooldown between the starts of
// consecutive calls. The spacing guarantee is start-to-start; once paced, up
// to capacity calls may overlap.
type Limiter struct {
	cooldown time.Duration
	permits  *semaphore.Weighted
	capacity int

	// lastStart holds the nanosecond offset from epoch of the most recent
	// call start, advanced only by compare-and-swap.
	lastStart atomic.Int64
	epoch     time.Time
}

// New builds a limiter with the given permit capacity and start-to-start
// cooldown.
func New(capacity int, cooldown time.Duration) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	return &Limiter{
		cooldown: cooldown,
		permits:  semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
		// Starting one cooldown in the past lets the first caller proceed
		// immediately.
		epoch: time.Now().Add(-cooldown),
	}
}

// MaxConcurrency returns the permit capacity, for callers sizing their own
// fan-out to match.
func (l *Limiter) MaxConcurrency() int {
	return l.capacity
}

// Do acquires a permit, waits out the cooldown since the previous call start
// and runs fn. The permit is released when fn returns, whatever its outcome.
// Do fails only when ctx is cancelled before fn begins.
func (l *Limiter) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := l.permits.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.permits.Release(1)

	if err := l.waitTurn(ctx); err != nil {
		return err
	}
	return fn(ctx)
}

// waitTurn blocks until cooldown has elapsed since lastStart, then claims the
// current instant as the new start. Claiming is a compare-and-swap so that
// two waiters can never share one gap; the loser recomputes its wait and
// retries.
func (l *Limiter) waitTurn(ctx context.Context) error {
	for {
		last := l.lastStart.Load()
		now := time.Since(l.epoch)

		if remaining := time.Duration(last) + l.cooldown - now; remaining > 0 {
			if err := l.sleep(ctx, remaining); err != nil {
				return err
			}
			continue
		}

		if l.lastStart.CompareAndSwap(last, int64(now)) {
			return nil
		}
	}
}

// sleep yields cooperatively for short waits and parks on a timer for longer
// ones, so a waiter neither busy-spins through a full cooldown nor pays timer
// latency for a near-miss.
func (l *Limiter) sleep(ctx context.Context, d time.Duration) error {
	if d <= spinThreshold {
		runtime.Gosched()
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
