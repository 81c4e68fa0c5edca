package repository

import (
	"context"
	"encoding/json"
	"time"

	"billz/internal/domain/model"
)

type ExecutionRepository interface {
	Create(ctx context.Context, tx Tx, e *model.Execution) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Execution, error)
	// FindWithPayment loads the execution and its payment for the status query.
	FindWithPayment(ctx context.Context, tx Tx, id string) (*model.ExecutionWithPayment, error)
	// FindOldestPending returns domain.ErrNotFound when the queue is empty.
	FindOldestPending(ctx context.Context, tx Tx) (*model.Execution, error)

	// ClaimPending is the exclusive gate pending → running. false means another
	// worker won the row and the caller must not touch it.
	ClaimPending(ctx context.Context, tx Tx, id string, startedAt time.Time) (bool, error)
	Complete(ctx context.Context, tx Tx, id string, result json.RawMessage, completedAt time.Time, durationSeconds int64) (bool, error)
	Fail(ctx context.Context, tx Tx, id string, errMsg string, completedAt time.Time) (bool, error)
}
