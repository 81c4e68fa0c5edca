package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"billz/internal/infra/metrics"
	"billz/internal/usecase"
)

// RefundWorker runs the approval pass then the transfer pass on an interval.
type RefundWorker struct {
	interval time.Duration
	cooldown time.Duration
	uc       usecase.RefundUseCase
	log      *zerolog.Logger
}

func NewRefundWorker(interval, cooldown time.Duration, uc usecase.RefundUseCase, logger *zerolog.Logger) *RefundWorker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	compLog := logger.With().Str("component", "RefundWorker").Logger()
	return &RefundWorker{
		interval: interval,
		cooldown: cooldown,
		uc:       uc,
		log:      &compLog,
	}
}

func (w *RefundWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting refund worker")
	// Run once on startup, then after every wait
	for {
		wait := w.Tick(ctx)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			w.log.Info().Msg("Stopping refund worker")
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Tick runs both passes once and returns the wait before the next run.
func (w *RefundWorker) Tick(ctx context.Context) time.Duration {
	approved, err := w.uc.ApprovePending(ctx)
	if err != nil {
		metrics.IncWorkerIteration("refund", "error")
		w.log.Error().Err(err).Dur("cooldown", w.cooldown).Msg("refund approval pass failed")
		return w.cooldown
	}
	if approved > 0 {
		w.log.Info().Int("count", approved).Msg("refunds approved")
	}

	completed, err := w.uc.ExecuteApproved(ctx)
	if err != nil {
		metrics.IncWorkerIteration("refund", "error")
		w.log.Error().Err(err).Dur("cooldown", w.cooldown).Msg("refund transfer pass failed")
		return w.cooldown
	}
	if completed > 0 {
		w.log.Info().Int("count", completed).Msg("refunds completed")
	}
	metrics.IncWorkerIteration("refund", "ok")
	return w.interval
}
