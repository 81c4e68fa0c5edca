package memory

import (
	"context"
	"encoding/json"
	"time"

	"billz/internal/domain"
	"billz/internal/domain/model"
	"billz/internal/domain/ports/repository"
)

var _ repository.ExecutionRepository = (*ExecutionRepo)(nil)

type ExecutionRepo struct{ s *Store }

func (r *ExecutionRepo) Create(ctx context.Context, tx repository.Tx, e *model.Execution) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.executions[e.ID]; ok {
		return domain.ErrAlreadyExists
	}
	if _, ok := r.s.payments[e.PaymentID]; !ok {
		return domain.ErrOperationFailed
	}
	for _, other := range r.s.executions {
		if other.PaymentID == e.PaymentID {
			return domain.ErrAlreadyExists
		}
	}
	c := cloneExecution(e)
	if len(c.Params) == 0 {
		c.Params = json.RawMessage("{}")
	}
	if err := r.s.record(tx, func() { delete(r.s.executions, c.ID) }); err != nil {
		return err
	}
	r.s.executions[c.ID] = c
	return nil
}

func (r *ExecutionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Execution, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.executions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneExecution(e), nil
}

func (r *ExecutionRepo) FindWithPayment(ctx context.Context, tx repository.Tx, id string) (*model.ExecutionWithPayment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.executions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	p, ok := r.s.payments[e.PaymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &model.ExecutionWithPayment{Execution: cloneExecution(e), Payment: clonePayment(p)}, nil
}

func (r *ExecutionRepo) FindOldestPending(ctx context.Context, tx repository.Tx) (*model.Execution, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var oldest *model.Execution
	for _, e := range r.s.executions {
		if e.Status != model.ExecutionStatusPending {
			continue
		}
		if oldest == nil || e.CreatedAt.Before(oldest.CreatedAt) ||
			(e.CreatedAt.Equal(oldest.CreatedAt) && e.ID < oldest.ID) {
			oldest = e
		}
	}
	if oldest == nil {
		return nil, domain.ErrNotFound
	}
	return cloneExecution(oldest), nil
}

func (r *ExecutionRepo) transition(tx repository.Tx, id string, from, to model.ExecutionStatus, mut func(*model.Execution)) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.executions[id]
	if !ok || e.Status != from || !from.CanTransitionTo(to) {
		return false, nil
	}
	prev := cloneExecution(e)
	if err := r.s.record(tx, func() { r.s.executions[id] = prev }); err != nil {
		return false, err
	}
	next := cloneExecution(e)
	next.Status = to
	mut(next)
	r.s.executions[id] = next
	return true, nil
}

func (r *ExecutionRepo) ClaimPending(ctx context.Context, tx repository.Tx, id string, startedAt time.Time) (bool, error) {
	return r.transition(tx, id, model.ExecutionStatusPending, model.ExecutionStatusRunning, func(e *model.Execution) {
		e.StartedAt = &startedAt
	})
}

func (r *ExecutionRepo) Complete(ctx context.Context, tx repository.Tx, id string, result json.RawMessage, completedAt time.Time, durationSeconds int64) (bool, error) {
	return r.transition(tx, id, model.ExecutionStatusRunning, model.ExecutionStatusCompleted, func(e *model.Execution) {
		e.Result = result
		e.CompletedAt = &completedAt
		e.DurationSeconds = &durationSeconds
	})
}

func (r *ExecutionRepo) Fail(ctx context.Context, tx repository.Tx, id string, errMsg string, completedAt time.Time) (bool, error) {
	return r.transition(tx, id, model.ExecutionStatusRunning, model.ExecutionStatusFailed, func(e *model.Execution) {
		e.Error = &errMsg
		e.CompletedAt = &completedAt
	})
}
