package pipeline

import (
	"context"
	"time"

	"sjsage522/promobot/internal/console"
)

// WaitResult reports how an interruptible wait ended
type WaitResult struct {
	Elapsed   time.Duration
	Remaining time.Duration
	Skipped   bool
}

// Waiter pauses between publishes
type Waiter interface {
	Wait(ctx context.Context, d time.Duration) WaitResult
}

// SkipWaiter sleeps in short polls and returns early on an operator signal
// or when ctx is done
type SkipWaiter struct {
	skip <-chan struct{}
	tick time.Duration
	now  func() time.Time
}

// NewSkipWaiter creates a waiter. skip may be nil.
func NewSkipWaiter(skip <-chan struct{}) *SkipWaiter {
	return &SkipWaiter{skip: skip, tick: 100 * time.Millisecond, now: time.Now}
}

// Wait blocks for d unless skipped
func (w *SkipWaiter) Wait(ctx context.Context, d time.Duration) WaitResult {
	start := w.now()
	deadline := start.Add(d)
	result := func(skipped bool) WaitResult {
		elapsed := w.now().Sub(start)
		remaining := d - elapsed
		if remaining < 0 {
			remaining = 0
		}
		return WaitResult{Elapsed: elapsed, Remaining: remaining, Skipped: skipped}
	}

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for w.now().Before(deadline) {
		select {
		case <-ctx.Done():
			return result(false)
		case <-w.skip:
			// extra presses must not skip the next wait too
			console.Drain(w.skip)
			return result(true)
		case <-ticker.C:
		}
	}
	return result(false)
}
