package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"billz/internal/domain"
	"billz/internal/domain/model"
	"billz/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, automation_id, amount, proof_header, proof_hash, requirements, verified_at,
  settled_at, settlement_tx, refund_status, refund_reason, refund_tx_reference, refunded_at, created_at, updated_at`

func scanPayment(row pgx.Row) (*model.Payment, error) {
	p := &model.Payment{}
	var reqs []byte
	var refund string
	if err := row.Scan(&p.ID, &p.AutomationID, &p.Amount, &p.ProofHeader, &p.ProofHash, &reqs, &p.VerifiedAt,
		&p.SettledAt, &p.SettlementTx, &refund, &p.RefundReason, &p.RefundTxReference, &p.RefundedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Requirements = reqs
	p.RefundStatus = model.RefundStatus(refund)
	return p, nil
}

// Save inserts a new ledger row. Payments are append-only, so there is no upsert.
func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (id, automation_id, amount, proof_header, proof_hash, requirements, verified_at, refund_status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.AutomationID, p.Amount, p.ProofHeader, p.ProofHash,
		[]byte(p.Requirements), p.VerifiedAt, string(p.RefundStatusOrNone()), p.CreatedAt, p.UpdatedAt)
	return mapWriteErr(err, domain.ErrDuplicatePayment)
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", id)
	if err != nil {
		return nil, err
	}
	p, err := scanPayment(row)
	if err != nil {
		return nil, mapReadErr(err)
	}
	return p, nil
}

func (r *paymentRepo) MarkSettled(ctx context.Context, tx repository.Tx, id string, settledAt time.Time, settlementTx *string) (bool, error) {
	const q = `
UPDATE payments
   SET settled_at = $2, settlement_tx = $3, updated_at = NOW()
 WHERE id = $1 AND settled_at IS NULL AND refund_status = 'none';`
	return r.conditional(ctx, tx, q, id, settledAt, settlementTx)
}

func (r *paymentRepo) RequestRefund(ctx context.Context, tx repository.Tx, id string, reason string) (bool, error) {
	const q = `
UPDATE payments
   SET refund_status = 'pending', refund_reason = $2, updated_at = NOW()
 WHERE id = $1 AND settled_at IS NULL AND refund_status = 'none';`
	return r.conditional(ctx, tx, q, id, reason)
}

func (r *paymentRepo) ApproveRefund(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `
UPDATE payments
   SET refund_status = 'approved', updated_at = NOW()
 WHERE id = $1 AND refund_status = 'pending';`
	return r.conditional(ctx, tx, q, id)
}

func (r *paymentRepo) CompleteRefund(ctx context.Context, tx repository.Tx, id string, txReference string, refundedAt time.Time) (bool, error) {
	const q = `
UPDATE payments
   SET refund_status = 'completed', refund_tx_reference = $2, refunded_at = $3, updated_at = NOW()
 WHERE id = $1 AND refund_status = 'approved';`
	return r.conditional(ctx, tx, q, id, txReference, refundedAt)
}

func (r *paymentRepo) conditional(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (bool, error) {
	cmd, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		return false, mapWriteErr(err, domain.ErrConflict)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *paymentRepo) ListPendingRefundsForFailedExecutions(ctx context.Context, tx repository.Tx, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
SELECT p.id, p.automation_id, p.amount, p.proof_header, p.proof_hash, p.requirements, p.verified_at,
       p.settled_at, p.settlement_tx, p.refund_status, p.refund_reason, p.refund_tx_reference, p.refunded_at, p.created_at, p.updated_at
  FROM payments p
  JOIN executions e ON e.payment_id = p.id
 WHERE p.refund_status = 'pending' AND e.status = 'failed'
 ORDER BY p.created_at ASC
 LIMIT $1;`
	return r.list(ctx, tx, q, limit)
}

func (r *paymentRepo) ListByRefundStatus(ctx context.Context, tx repository.Tx, status model.RefundStatus, limit int) ([]*model.Payment, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE refund_status = $1 ORDER BY created_at ASC LIMIT $2;`
	return r.list(ctx, tx, q, string(status), limit)
}

func (r *paymentRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Payment, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}
