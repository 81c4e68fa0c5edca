// File: internal/usecase/refund_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"billz/internal/domain"
	"billz/internal/domain/model"
	"billz/internal/domain/ports/adapter"
	"billz/internal/domain/ports/repository"
	"billz/internal/infra/logging"
	"billz/internal/infra/metrics"
)

// Compile-time check
var _ RefundUseCase = (*refundUC)(nil)

type RefundUseCase interface {
	// ApprovePending auto-approves pending refunds whose execution failed.
	ApprovePending(ctx context.Context) (int, error)
	// ExecuteApproved transfers funds for approved refunds and completes them.
	ExecuteApproved(ctx context.Context) (int, error)

	// List and Approve back the manual review endpoints.
	List(ctx context.Context, status model.RefundStatus, limit int) ([]*model.Payment, error)
	Approve(ctx context.Context, paymentID string) error
}

// Locker guards one payment's transfer across processes. Optional.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

type RefundConfig struct {
	ApproveBatch    int
	ExecuteBatch    int
	LockTTL         time.Duration
	TransferTimeout time.Duration
	DefaultAsset    string        // used when the requirements snapshot has no asset
	AlertEvery      time.Duration // at most one failure alert per payment per window
	Dev             bool
}

type RefundOption func(*refundUC)

// WithAlertThrottle shares the per-payment alert budget across processes.
func WithAlertThrottle(t AlertThrottle) RefundOption {
	return func(u *refundUC) { u.throttle = t }
}

type refundUC struct {
	payments repository.PaymentRepository
	transfer adapter.FundsTransfer
	locker   Locker
	alerter  adapter.Alerter
	cfg      RefundConfig
	log      *zerolog.Logger
	now      func() time.Time
	throttle AlertThrottle
	local    *memThrottle
}

// NewRefundUseCase wires the refund flow. locker and alerter may be nil.
func NewRefundUseCase(
	payments repository.PaymentRepository,
	transfer adapter.FundsTransfer,
	locker Locker,
	alerter adapter.Alerter,
	cfg RefundConfig,
	logger *zerolog.Logger,
	opts ...RefundOption,
) *refundUC {
	if cfg.ApproveBatch <= 0 {
		cfg.ApproveBatch = 10
	}
	if cfg.ExecuteBatch <= 0 {
		cfg.ExecuteBatch = 5
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.TransferTimeout <= 0 {
		cfg.TransferTimeout = 2 * time.Minute
	}
	if cfg.AlertEvery <= 0 {
		cfg.AlertEvery = time.Hour
	}
	l := logger.With().Str("component", "refund").Logger()
	u := &refundUC{
		payments: payments,
		transfer: transfer,
		locker:   locker,
		alerter:  alerter,
		cfg:      cfg,
		log:      &l,
		now:      func() time.Time { return time.Now().UTC() },
	}
	u.local = newMemThrottle(func() time.Time { return u.now() })
	for _, o := range opts {
		o(u)
	}
	if u.throttle == nil {
		u.throttle = u.local
	}
	return u
}

func refundLockKey(paymentID string) string { return "refund:" + paymentID }

func refundAlertKey(paymentID string) string { return "refund_alert:" + paymentID }

func (u *refundUC) ApprovePending(ctx context.Context) (int, error) {
	list, err := u.payments.ListPendingRefundsForFailedExecutions(ctx, nil, u.cfg.ApproveBatch)
	if err != nil {
		return 0, fmt.Errorf("list pending refunds: %w", err)
	}
	approved := 0
	for _, p := range list {
		ok, err := u.payments.ApproveRefund(ctx, nil, p.ID)
		if err != nil {
			return approved, fmt.Errorf("approve refund %s: %w", p.ID, err)
		}
		if !ok {
			continue
		}
		approved++
		metrics.IncRefundTransition(string(model.RefundStatusApproved), "auto")
		u.log.Info().Str("payment_id", p.ID).Msg("refund approved")
	}
	return approved, nil
}

func (u *refundUC) ExecuteApproved(ctx context.Context) (int, error) {
	if u.transfer == nil {
		return 0, domain.ErrNotConfigured
	}
	list, err := u.payments.ListByRefundStatus(ctx, nil, model.RefundStatusApproved, u.cfg.ExecuteBatch)
	if err != nil {
		return 0, fmt.Errorf("list approved refunds: %w", err)
	}
	metrics.SetRefundBacklog(string(model.RefundStatusApproved), len(list))

	completed := 0
	for _, p := range list {
		if ctx.Err() != nil {
			return completed, nil
		}
		done, err := u.executeOne(logging.WithPaymentID(ctx, p.ID), p)
		if err != nil {
			return completed, err
		}
		if done {
			completed++
		}
	}
	return completed, nil
}

// executeOne returns an error only for store failures; transfer failures leave
// the refund approved for the next pass.
func (u *refundUC) executeOne(ctx context.Context, p *model.Payment) (bool, error) {
	log := logging.With(ctx, u.log)

	if u.locker != nil {
		key := refundLockKey(p.ID)
		token, err := u.locker.TryLock(ctx, key, u.cfg.LockTTL)
		if err != nil {
			if !errors.Is(err, domain.ErrLockNotAcquired) {
				log.Warn().Err(err).Msg("refund lock unavailable; skipping")
			}
			return false, nil
		}
		defer func() {
			if err := u.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
				log.Warn().Err(err).Msg("refund unlock")
			}
		}()
	}

	destination, err := refundDestination(p)
	if err != nil {
		metrics.IncRefundTransfer("unroutable")
		log.Error().Err(err).Msg("cannot determine refund destination")
		u.failureAlert(ctx, log, p.ID, fmt.Sprintf("refund %s needs manual handling: %v", p.ID, err))
		return false, nil
	}
	asset := model.RequirementsAsset(p.Requirements)
	if asset == "" {
		asset = u.cfg.DefaultAsset
	}

	tctx, cancel := context.WithTimeout(ctx, u.cfg.TransferTimeout)
	txRef, err := u.transfer.Transfer(tctx, destination, p.Amount, asset)
	cancel()
	if err != nil {
		metrics.IncRefundTransfer("failed")
		log.Error().Err(err).Str("destination", logging.Redact(destination, u.cfg.Dev)).Msg("refund transfer failed; will retry")
		u.failureAlert(ctx, log, p.ID, fmt.Sprintf("refund transfer failed for payment %s: %v", p.ID, err))
		return false, nil
	}
	metrics.IncRefundTransfer("sent")

	ok, err := u.payments.CompleteRefund(context.WithoutCancel(ctx), nil, p.ID, txRef, u.now())
	if err != nil {
		log.Error().Err(err).Str("tx", txRef).Msg("refund sent but not recorded")
		u.alert(ctx, log, fmt.Sprintf("refund %s sent (%s) but could not be recorded: %v", p.ID, txRef, err))
		return false, fmt.Errorf("complete refund %s: %w", p.ID, err)
	}
	if !ok {
		log.Warn().Str("tx", txRef).Msg("refund already completed elsewhere")
		return false, nil
	}
	u.local.forget(refundAlertKey(p.ID))
	metrics.IncRefundTransition(string(model.RefundStatusCompleted), "auto")
	metrics.AddRefunded(p.Amount)
	log.Info().Str("tx", txRef).Msg("refund completed")
	return true, nil
}

// refundDestination recovers the payer address from the stored proof.
func refundDestination(p *model.Payment) (string, error) {
	proof, err := model.DecodePaymentProof(p.ProofHeader)
	if err != nil {
		return "", err
	}
	return proof.Payer()
}

func (u *refundUC) List(ctx context.Context, status model.RefundStatus, limit int) ([]*model.Payment, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	return u.payments.ListByRefundStatus(ctx, nil, status, limit)
}

// Approve is the manual pending → approved step; it does not require a failed execution.
func (u *refundUC) Approve(ctx context.Context, paymentID string) error {
	if _, err := uuid.Parse(paymentID); err != nil {
		return domain.ErrNotFound
	}
	if _, err := u.payments.FindByID(ctx, nil, paymentID); err != nil {
		return err
	}
	ok, err := u.payments.ApproveRefund(ctx, nil, paymentID)
	if err != nil {
		return fmt.Errorf("approve refund %s: %w", paymentID, err)
	}
	if !ok {
		return domain.ErrConflict
	}
	metrics.IncRefundTransition(string(model.RefundStatusApproved), "manual")
	u.log.Info().Str("payment_id", paymentID).Msg("refund approved manually")
	return nil
}

// failureAlert alerts for a repeatedly retried payment at most once per AlertEvery.
func (u *refundUC) failureAlert(ctx context.Context, log *zerolog.Logger, paymentID, text string) {
	ok, err := u.throttle.Allow(ctx, refundAlertKey(paymentID), 1, u.cfg.AlertEvery)
	if err != nil {
		log.Warn().Err(err).Msg("alert throttle unavailable")
		ok = true
	}
	if !ok {
		return
	}
	u.alert(ctx, log, text)
}

func (u *refundUC) alert(ctx context.Context, log *zerolog.Logger, text string) {
	if u.alerter == nil {
		return
	}
	if err := u.alerter.Alert(ctx, text); err != nil {
		log.Warn().Err(err).Msg("alert not delivered")
	}
}
