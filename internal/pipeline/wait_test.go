package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSkipWaiterRunsFullDuration(t *testing.T) {
	w := NewSkipWaiter(nil)
	w.tick = 5 * time.Millisecond

	r := w.Wait(context.Background(), 30*time.Millisecond)
	assert.False(t, r.Skipped)
	assert.GreaterOrEqual(t, r.Elapsed, 30*time.Millisecond)
	assert.Zero(t, r.Remaining)
}

func TestSkipWaiterSkips(t *testing.T) {
	skip := make(chan struct{}, 1)
	skip <- struct{}{}
	w := NewSkipWaiter(skip)

	r := w.Wait(context.Background(), time.Minute)
	assert.True(t, r.Skipped)
	assert.Greater(t, r.Remaining, 50*time.Second)
	assert.Empty(t, skip)
}

func TestSkipWaiterStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewSkipWaiter(nil).Wait(ctx, time.Minute)
	assert.False(t, r.Skipped)
	assert.Greater(t, r.Remaining, 50*time.Second)
}
