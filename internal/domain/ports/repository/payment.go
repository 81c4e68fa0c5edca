package repository

import (
	"context"
	"time"

	"billz/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

// PaymentRepository is the ledger. Every mutating method after Save is a
// conditional single-row update and reports whether this caller won it.
type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)

	// MarkSettled sets settled_at only while the payment is neither settled nor refund-requested.
	MarkSettled(ctx context.Context, tx Tx, id string, settledAt time.Time, settlementTx *string) (bool, error)
	// RequestRefund moves refund_status none → pending for an unsettled payment.
	RequestRefund(ctx context.Context, tx Tx, id string, reason string) (bool, error)
	// ApproveRefund moves refund_status pending → approved.
	ApproveRefund(ctx context.Context, tx Tx, id string) (bool, error)
	// CompleteRefund moves refund_status approved → completed and records the transfer.
	CompleteRefund(ctx context.Context, tx Tx, id string, txReference string, refundedAt time.Time) (bool, error)

	// ListPendingRefundsForFailedExecutions returns pending refunds whose execution is failed.
	ListPendingRefundsForFailedExecutions(ctx context.Context, tx Tx, limit int) ([]*model.Payment, error)
	ListByRefundStatus(ctx context.Context, tx Tx, status model.RefundStatus, limit int) ([]*model.Payment, error)
}
