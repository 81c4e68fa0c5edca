package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"billz/internal/infra/metrics"
	"billz/internal/usecase"
)

// ExecutionWorker drains the job queue one execution at a time.
type ExecutionWorker struct {
	idle     time.Duration
	cooldown time.Duration
	uc       usecase.ExecutionUseCase
	log      *zerolog.Logger
}

func NewExecutionWorker(idle, cooldown time.Duration, uc usecase.ExecutionUseCase, logger *zerolog.Logger) *ExecutionWorker {
	if idle <= 0 {
		idle = 2 * time.Second
	}
	if cooldown <= 0 {
		cooldown = 5 * time.Second
	}
	compLog := logger.With().Str("component", "ExecutionWorker").Logger()
	return &ExecutionWorker{
		idle:     idle,
		cooldown: cooldown,
		uc:       uc,
		log:      &compLog,
	}
}

// Run loops until ctx is cancelled. Errors never stop the loop.
func (w *ExecutionWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting execution worker")
	for {
		wait := w.Tick(ctx)
		if ctx.Err() != nil {
			w.log.Info().Msg("Stopping execution worker")
			return ctx.Err()
		}
		if wait == 0 {
			continue
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			w.log.Info().Msg("Stopping execution worker")
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Tick runs one iteration and returns how long to wait before the next one.
func (w *ExecutionWorker) Tick(ctx context.Context) time.Duration {
	processed, err := w.uc.ProcessNext(ctx)
	switch {
	case err != nil:
		metrics.IncWorkerIteration("execution", "error")
		w.log.Error().Err(err).Dur("cooldown", w.cooldown).Msg("execution worker error")
		return w.cooldown
	case !processed:
		metrics.IncWorkerIteration("execution", "idle")
		return w.idle
	default:
		metrics.IncWorkerIteration("execution", "processed")
		return 0
	}
}
