package worker

import (
	"context"
	"errors"
	"time"

	"sjsage522/promobot/internal/pipeline"
	"sjsage522/promobot/logger"
	pkgerrors "sjsage522/promobot/pkg/errors"
)

// Cycler runs publishing cycles
type Cycler interface {
	RunCycle(ctx context.Context) (pipeline.Summary, error)
	Fail(ctx context.Context, err error)
}

// Worker runs a cycle every interval until its context ends
type Worker struct {
	cycler   Cycler
	interval time.Duration
	log      *logger.Logger
}

// NewWorker creates a new worker
func NewWorker(cycler Cycler, interval time.Duration) *Worker {
	return &Worker{
		cycler:   cycler,
		interval: interval,
		log:      logger.ForWorker(),
	}
}

// RunOnce runs a single cycle. A cycle failure, including a panic, is
// reported to the operator before it is returned.
func (w *Worker) RunOnce(ctx context.Context) (pipeline.Summary, error) {
	start := time.Now()
	s, err := w.runCycle(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return s, err
		}
		w.log.Error().Err(err).Str("run_id", s.RunID).Msg("Cycle failed")
		w.cycler.Fail(ctx, err)
		return s, err
	}
	w.log.Debug().Dur("elapsed", time.Since(start)).Int("published", s.Published).Msg("Cycle done")
	return s, nil
}

func (w *Worker) runCycle(ctx context.Context) (s pipeline.Summary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pkgerrors.NewPanic("worker", r)
		}
	}()
	return w.cycler.RunCycle(ctx)
}

// Start runs cycles until ctx is cancelled or a cycle fails. Restarting
// after a failure is left to the process supervisor.
func (w *Worker) Start(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Worker started")
	for {
		if _, err := w.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		timer := time.NewTimer(w.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.log.Info().Msg("Worker stopped")
			return nil
		case <-timer.C:
		}
	}
}
