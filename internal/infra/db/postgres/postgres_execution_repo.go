package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"billz/internal/domain"
	"billz/internal/domain/model"
	"billz/internal/domain/ports/repository"
)

var _ repository.ExecutionRepository = (*executionRepo)(nil)

type executionRepo struct {
	pool *pgxpool.Pool
}

func NewExecutionRepo(pool *pgxpool.Pool) *executionRepo {
	return &executionRepo{pool: pool}
}

const executionColumns = `id, payment_id, automation_id, params, status, created_at, started_at, completed_at, result, duration_seconds, error`

func scanExecution(row pgx.Row, extra ...interface{}) (*model.Execution, error) {
	e := &model.Execution{}
	var params, result []byte
	var status string
	dest := []interface{}{&e.ID, &e.PaymentID, &e.AutomationID, &params, &status, &e.CreatedAt,
		&e.StartedAt, &e.CompletedAt, &result, &e.DurationSeconds, &e.Error}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	e.Params = params
	e.Result = result
	e.Status = model.ExecutionStatus(status)
	return e, nil
}

func (r *executionRepo) Create(ctx context.Context, tx repository.Tx, e *model.Execution) error {
	params := []byte(e.Params)
	if len(params) == 0 {
		params = []byte("{}")
	}
	const q = `
INSERT INTO executions (id, payment_id, automation_id, params, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6);`
	_, err := execSQL(ctx, r.pool, tx, q, e.ID, e.PaymentID, e.AutomationID, params, string(e.Status), e.CreatedAt)
	return mapWriteErr(err, domain.ErrAlreadyExists)
}

func (r *executionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Execution, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+executionColumns+` FROM executions WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	e, err := scanExecution(row)
	if err != nil {
		return nil, mapReadErr(err)
	}
	return e, nil
}

func (r *executionRepo) FindWithPayment(ctx context.Context, tx repository.Tx, id string) (*model.ExecutionWithPayment, error) {
	const q = `
SELECT e.id, e.payment_id, e.automation_id, e.params, e.status, e.created_at, e.started_at, e.completed_at,
       e.result, e.duration_seconds, e.error,
       p.settled_at, p.refund_status, p.amount
  FROM executions e
  JOIN payments p ON p.id = e.payment_id
 WHERE e.id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	p := &model.Payment{}
	var refund string
	e, err := scanExecution(row, &p.SettledAt, &refund, &p.Amount)
	if err != nil {
		return nil, mapReadErr(err)
	}
	p.ID = e.PaymentID
	p.AutomationID = e.AutomationID
	p.RefundStatus = model.RefundStatus(refund)
	return &model.ExecutionWithPayment{Execution: e, Payment: p}, nil
}

func (r *executionRepo) FindOldestPending(ctx context.Context, tx repository.Tx) (*model.Execution, error) {
	const q = `SELECT ` + executionColumns + ` FROM executions WHERE status = 'pending' ORDER BY created_at ASC, id ASC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q)
	if err != nil {
		return nil, err
	}
	e, err := scanExecution(row)
	if err != nil {
		return nil, mapReadErr(err)
	}
	return e, nil
}

// ClaimPending is the compare-and-swap gate; at most one caller sees true.
func (r *executionRepo) ClaimPending(ctx context.Context, tx repository.Tx, id string, startedAt time.Time) (bool, error) {
	const q = `UPDATE executions SET status = 'running', started_at = $2 WHERE id = $1 AND status = 'pending';`
	return r.conditional(ctx, tx, q, id, startedAt)
}

func (r *executionRepo) Complete(ctx context.Context, tx repository.Tx, id string, result json.RawMessage, completedAt time.Time, durationSeconds int64) (bool, error) {
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	const q = `
UPDATE executions
   SET status = 'completed', result = $2, completed_at = $3, duration_seconds = $4
 WHERE id = $1 AND status = 'running';`
	return r.conditional(ctx, tx, q, id, []byte(result), completedAt, durationSeconds)
}

func (r *executionRepo) Fail(ctx context.Context, tx repository.Tx, id string, errMsg string, completedAt time.Time) (bool, error) {
	const q = `
UPDATE executions
   SET status = 'failed', error = $2, completed_at = $3
 WHERE id = $1 AND status = 'running';`
	return r.conditional(ctx, tx, q, id, errMsg, completedAt)
}

func (r *executionRepo) conditional(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (bool, error) {
	cmd, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		return false, mapWriteErr(err, domain.ErrConflict)
	}
	return cmd.RowsAffected() == 1, nil
}
