// File: internal/usecase/execution_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"billz/internal/domain"
	"billz/internal/domain/model"
	"billz/internal/domain/ports/adapter"
	"billz/internal/domain/ports/repository"
	"billz/internal/infra/logging"
	"billz/internal/infra/metrics"
)

// Compile-time check
var _ ExecutionUseCase = (*executionUC)(nil)

type ExecutionUseCase interface {
	// ProcessNext claims and runs the oldest pending job. It returns false
	// only when the queue was empty.
	ProcessNext(ctx context.Context) (bool, error)
}

type ExecutionConfig struct {
	MaxAttempts       int
	BackoffBase       time.Duration // delay before attempt n+1 is BackoffBase * 2^n
	AttemptTimeout    time.Duration
	SettlementTimeout time.Duration
}

type ExecutionOption func(*executionUC)

// WithSleeper replaces the context-aware wait used between attempts.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) ExecutionOption {
	return func(u *executionUC) { u.sleep = fn }
}

// WithClock replaces time.Now for timestamps and durations.
func WithClock(fn func() time.Time) ExecutionOption {
	return func(u *executionUC) { u.now = fn }
}

type executionUC struct {
	payments   repository.PaymentRepository
	executions repository.ExecutionRepository
	workflow   adapter.WorkflowBackend
	protocol   adapter.PaymentProtocol
	alerter    adapter.Alerter
	cfg        ExecutionConfig
	log        *zerolog.Logger
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewExecutionUseCase wires the execution flow. alerter may be nil.
func NewExecutionUseCase(
	payments repository.PaymentRepository,
	executions repository.ExecutionRepository,
	workflow adapter.WorkflowBackend,
	protocol adapter.PaymentProtocol,
	alerter adapter.Alerter,
	cfg ExecutionConfig,
	logger *zerolog.Logger,
	opts ...ExecutionOption,
) *executionUC {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 5 * time.Minute
	}
	if cfg.SettlementTimeout <= 0 {
		cfg.SettlementTimeout = 30 * time.Second
	}
	l := logger.With().Str("component", "execution").Logger()
	u := &executionUC{
		payments:   payments,
		executions: executions,
		workflow:   workflow,
		protocol:   protocol,
		alerter:    alerter,
		cfg:        cfg,
		log:        &l,
		now:        func() time.Time { return time.Now().UTC() },
		sleep:      sleepCtx,
	}
	for _, o := range opts {
		o(u)
	}
	return u
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// finalizeTimeout bounds the bookkeeping writes after a job ran.
const finalizeTimeout = 15 * time.Second

func (u *executionUC) ProcessNext(ctx context.Context) (bool, error) {
	job, err := u.executions.FindOldestPending(ctx, nil)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select pending: %w", err)
	}

	won, err := u.executions.ClaimPending(ctx, nil, job.ID, u.now())
	if err != nil {
		return true, fmt.Errorf("claim %s: %w", job.ID, err)
	}
	metrics.IncExecutionClaim(won)
	if !won {
		return true, nil
	}

	// A claimed job runs to completion or retry exhaustion; shutdown waits
	// for it instead of cancelling the workflow call.
	ctx = logging.WithPaymentID(logging.WithJobID(context.WithoutCancel(ctx), job.ID), job.PaymentID)
	log := logging.With(ctx, u.log)
	log.Info().Str("automation", job.AutomationID).Msg("job claimed")

	result, attempts, runErr := u.runWithRetry(ctx, job, log)

	fctx, cancel := context.WithTimeout(ctx, finalizeTimeout+u.cfg.SettlementTimeout)
	defer cancel()
	if runErr == nil {
		return true, u.complete(fctx, job, result, log)
	}
	return true, u.fail(fctx, job, fmt.Sprintf("failed after %d attempts: %v", attempts, runErr), log)
}

// runWithRetry returns the attempt count actually made alongside the last error.
func (u *executionUC) runWithRetry(ctx context.Context, job *model.Execution, log *zerolog.Logger) (json.RawMessage, int, error) {
	var lastErr error
	for attempt := 1; attempt <= u.cfg.MaxAttempts; attempt++ {
		actx, cancel := context.WithTimeout(ctx, u.cfg.AttemptTimeout)
		res, err := u.workflow.Execute(actx, job.AutomationID, job.Params)
		cancel()
		metrics.IncExecutionAttempt(job.AutomationID, err == nil)
		if err == nil {
			return res, attempt, nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", u.cfg.MaxAttempts).Msg("attempt failed")

		if attempt == u.cfg.MaxAttempts {
			break
		}
		delay := u.cfg.BackoffBase * time.Duration(1<<uint(attempt))
		if err := u.sleep(ctx, delay); err != nil {
			return nil, attempt, err
		}
	}
	return nil, u.cfg.MaxAttempts, lastErr
}

func (u *executionUC) complete(ctx context.Context, job *model.Execution, result json.RawMessage, log *zerolog.Logger) error {
	completedAt := u.now()
	duration := job.ElapsedSeconds(completedAt)
	ok, err := u.executions.Complete(ctx, nil, job.ID, result, completedAt, duration)
	if err != nil {
		return fmt.Errorf("complete %s: %w", job.ID, err)
	}
	if !ok {
		log.Warn().Msg("job was no longer running; result dropped")
		return nil
	}
	metrics.IncExecutionFinished(job.AutomationID, string(model.ExecutionStatusCompleted), completedAt.Sub(job.CreatedAt))
	log.Info().Int64("duration_seconds", duration).Msg("job completed")

	return u.settle(ctx, job, log)
}

// settle captures the payment. A failure leaves the job completed and the
// payment unsettled; operators are alerted.
func (u *executionUC) settle(ctx context.Context, job *model.Execution, log *zerolog.Logger) error {
	p, err := u.payments.FindByID(ctx, nil, job.PaymentID)
	if err != nil {
		return fmt.Errorf("load payment %s: %w", job.PaymentID, err)
	}
	var reqs model.PaymentRequirements
	if err := json.Unmarshal(p.Requirements, &reqs); err != nil {
		u.settlementFailed(ctx, job, fmt.Errorf("decode requirements: %w", err), log)
		return nil
	}

	sctx, cancel := context.WithTimeout(ctx, u.cfg.SettlementTimeout)
	res, err := u.protocol.Settle(sctx, p.ProofHeader, &reqs)
	cancel()
	if err == nil && !res.Success {
		err = fmt.Errorf("facilitator rejected settlement: %s", res.ErrorReason)
	}
	if err != nil {
		u.settlementFailed(ctx, job, err, log)
		return nil
	}

	var txRef *string
	if res.Transaction != "" {
		txRef = &res.Transaction
	}
	ok, err := u.payments.MarkSettled(ctx, nil, p.ID, u.now(), txRef)
	if err != nil {
		metrics.IncSettlement("unrecorded")
		log.Error().Err(err).Str("settlement_tx", res.Transaction).Msg("payment settled but not recorded")
		u.alert(ctx, log, fmt.Sprintf("payment %s settled (%s) but could not be recorded: %v", p.ID, res.Transaction, err))
		return fmt.Errorf("mark settled %s: %w", p.ID, err)
	}
	if !ok {
		log.Warn().Msg("payment already settled or refund-requested")
		return nil
	}
	metrics.IncSettlement("settled")
	metrics.AddSettledRevenue(p.AutomationID, p.Amount)
	log.Info().Str("settlement_tx", res.Transaction).Msg("payment settled")
	return nil
}

func (u *executionUC) settlementFailed(ctx context.Context, job *model.Execution, err error, log *zerolog.Logger) {
	metrics.IncSettlement("failed")
	log.Error().Err(err).Msg("settlement failed; job stays completed")
	u.alert(ctx, log, fmt.Sprintf("settlement failed for job %s (payment %s): %v", job.ID, job.PaymentID, err))
}

func (u *executionUC) fail(ctx context.Context, job *model.Execution, msg string, log *zerolog.Logger) error {
	completedAt := u.now()
	ok, err := u.executions.Fail(ctx, nil, job.ID, msg, completedAt)
	if err != nil {
		return fmt.Errorf("fail %s: %w", job.ID, err)
	}
	if !ok {
		log.Warn().Msg("job was no longer running; failure dropped")
		return nil
	}
	metrics.IncExecutionFinished(job.AutomationID, string(model.ExecutionStatusFailed), completedAt.Sub(job.CreatedAt))
	log.Error().Str("error", msg).Msg("job failed")

	requested, err := u.payments.RequestRefund(ctx, nil, job.PaymentID, msg)
	if err != nil {
		return fmt.Errorf("request refund %s: %w", job.PaymentID, err)
	}
	if !requested {
		log.Warn().Msg("payment was not eligible for a refund request")
		return nil
	}
	metrics.IncRefundTransition(string(model.RefundStatusPending), "auto")
	return nil
}

func (u *executionUC) alert(ctx context.Context, log *zerolog.Logger, text string) {
	if u.alerter == nil {
		return
	}
	if err := u.alerter.Alert(ctx, text); err != nil {
		log.Warn().Err(err).Msg("alert not delivered")
	}
}
