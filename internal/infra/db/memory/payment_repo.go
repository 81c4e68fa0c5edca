package memory

import (
	"context"
	"sort"
	"time"

	"billz/internal/domain"
	"billz/internal/domain/model"
	"billz/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*PaymentRepo)(nil)

type PaymentRepo struct{ s *Store }

func (r *PaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.payments[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	if _, ok := r.s.byHash[p.ProofHash]; ok {
		return domain.ErrDuplicatePayment
	}
	c := clonePayment(p)
	c.RefundStatus = p.RefundStatusOrNone()
	if err := r.s.record(tx, func() {
		delete(r.s.payments, c.ID)
		delete(r.s.byHash, c.ProofHash)
	}); err != nil {
		return err
	}
	r.s.payments[c.ID] = c
	r.s.byHash[c.ProofHash] = c.ID
	return nil
}

func (r *PaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePayment(p), nil
}

// update applies mut when cond holds, mirroring a single-row conditional UPDATE.
func (r *PaymentRepo) update(tx repository.Tx, id string, cond func(*model.Payment) bool, mut func(*model.Payment)) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok || !cond(p) {
		return false, nil
	}
	prev := clonePayment(p)
	if err := r.s.record(tx, func() { r.s.payments[id] = prev }); err != nil {
		return false, err
	}
	next := clonePayment(p)
	mut(next)
	next.UpdatedAt = time.Now().UTC()
	r.s.payments[id] = next
	return true, nil
}

func unsettledAndUnrefunded(p *model.Payment) bool {
	return p.SettledAt == nil && p.RefundStatusOrNone() == model.RefundStatusNone
}

func (r *PaymentRepo) MarkSettled(ctx context.Context, tx repository.Tx, id string, settledAt time.Time, settlementTx *string) (bool, error) {
	return r.update(tx, id, unsettledAndUnrefunded, func(p *model.Payment) {
		p.SettledAt = &settledAt
		p.SettlementTx = settlementTx
	})
}

func (r *PaymentRepo) RequestRefund(ctx context.Context, tx repository.Tx, id string, reason string) (bool, error) {
	return r.update(tx, id, unsettledAndUnrefunded, func(p *model.Payment) {
		p.RefundStatus = model.RefundStatusPending
		p.RefundReason = &reason
	})
}

func (r *PaymentRepo) ApproveRefund(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	return r.update(tx, id,
		func(p *model.Payment) bool { return p.RefundStatus == model.RefundStatusPending },
		func(p *model.Payment) { p.RefundStatus = model.RefundStatusApproved })
}

func (r *PaymentRepo) CompleteRefund(ctx context.Context, tx repository.Tx, id string, txReference string, refundedAt time.Time) (bool, error) {
	return r.update(tx, id,
		func(p *model.Payment) bool { return p.RefundStatus == model.RefundStatusApproved },
		func(p *model.Payment) {
			p.RefundStatus = model.RefundStatusCompleted
			p.RefundTxReference = &txReference
			p.RefundedAt = &refundedAt
		})
}

func (r *PaymentRepo) ListPendingRefundsForFailedExecutions(ctx context.Context, tx repository.Tx, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 10
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	failed := map[string]bool{}
	for _, e := range r.s.executions {
		if e.Status == model.ExecutionStatusFailed {
			failed[e.PaymentID] = true
		}
	}
	return r.collect(limit, func(p *model.Payment) bool {
		return p.RefundStatus == model.RefundStatusPending && failed[p.ID]
	}), nil
}

func (r *PaymentRepo) ListByRefundStatus(ctx context.Context, tx repository.Tx, status model.RefundStatus, limit int) ([]*model.Payment, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	if limit <= 0 {
		limit = 100
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.collect(limit, func(p *model.Payment) bool { return p.RefundStatusOrNone() == status }), nil
}

// collect must be called with the store lock held.
func (r *PaymentRepo) collect(limit int, keep func(*model.Payment) bool) []*model.Payment {
	var out []*model.Payment
	for _, p := range r.s.payments {
		if keep(p) {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
