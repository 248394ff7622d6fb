package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/promobot/internal/pipeline"
	pkgerrors "sjsage522/promobot/pkg/errors"
)

type mockCycler struct {
	mu     sync.Mutex
	runs   int
	errAt  int
	err    error
	failed []error
	onRun  func(n int)
	panics bool
}

func (m *mockCycler) RunCycle(ctx context.Context) (pipeline.Summary, error) {
	m.mu.Lock()
	m.runs++
	n := m.runs
	m.mu.Unlock()

	if m.onRun != nil {
		m.onRun(n)
	}
	if m.panics {
		panic("nil map in selection")
	}
	if m.err != nil && n == m.errAt {
		return pipeline.Summary{RunID: "r"}, m.err
	}
	if ctx.Err() != nil {
		return pipeline.Summary{}, ctx.Err()
	}
	return pipeline.Summary{RunID: "r", Published: 1}, nil
}

func (m *mockCycler) Fail(ctx context.Context, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, err)
}

func TestRunOnceReportsFailure(t *testing.T) {
	boom := errors.New("listing unavailable")
	c := &mockCycler{errAt: 1, err: boom}

	_, err := NewWorker(c, time.Hour).RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []error{boom}, c.failed)
}

func TestRunOnceSuccess(t *testing.T) {
	c := &mockCycler{}
	s, err := NewWorker(c, time.Hour).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Published)
	assert.Empty(t, c.failed)
}

func TestStartStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &mockCycler{onRun: func(n int) {
		if n == 3 {
			cancel()
		}
	}}

	err := NewWorker(c, time.Millisecond).Start(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 3, c.runs)
	assert.Empty(t, c.failed)
}

func TestStartReturnsCycleError(t *testing.T) {
	boom := errors.New("listing unavailable")
	c := &mockCycler{errAt: 2, err: boom}

	err := NewWorker(c, time.Millisecond).Start(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, c.runs)
	assert.Len(t, c.failed, 1)
}

func TestRunOnceReportsPanic(t *testing.T) {
	c := &mockCycler{panics: true}

	var err error
	require.NotPanics(t, func() {
		_, err = NewWorker(c, time.Hour).RunOnce(context.Background())
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypePanic))
	assert.Contains(t, err.Error(), "nil map in selection")
	require.Len(t, c.failed, 1)
	assert.Equal(t, err, c.failed[0])
}

func TestStartStopsAfterPanic(t *testing.T) {
	c := &mockCycler{panics: true}

	err := NewWorker(c, time.Millisecond).Start(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, c.runs)
	assert.Len(t, c.failed, 1)
}
