// File: internal/usecase/status_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"billz/internal/domain"
	"billz/internal/domain/model"
	"billz/internal/domain/ports/repository"
)

// RefundWindow is the promise made to callers of a failed job.
const RefundWindow = 6 * time.Hour

const refundMessage = "A refund will be processed automatically within 6 hours"

// Compile-time check
var _ StatusUseCase = (*statusUC)(nil)

type StatusUseCase interface {
	Get(ctx context.Context, jobID string) (*JobStatus, error)
}

// JobStatus is the polling view of one execution.
type JobStatus struct {
	JobID        string                `json:"jobId"`
	Status       model.ExecutionStatus `json:"status"`
	AutomationID string                `json:"automationId"`
	CreatedAt    time.Time             `json:"createdAt"`
	StartedAt    *time.Time            `json:"startedAt"`
	CompletedAt  *time.Time            `json:"completedAt"`
	Message      string                `json:"message"`

	// completed
	Result          json.RawMessage `json:"result,omitempty"`
	DurationSeconds *int64          `json:"durationSeconds,omitempty"`
	PaymentSettled  *bool           `json:"paymentSettled,omitempty"`

	// failed
	Error         *string            `json:"error,omitempty"`
	RefundStatus  model.RefundStatus `json:"refundStatus,omitempty"`
	RefundMessage string             `json:"refundMessage,omitempty"`
}

type statusUC struct {
	executions repository.ExecutionRepository
}

func NewStatusUseCase(executions repository.ExecutionRepository) *statusUC {
	return &statusUC{executions: executions}
}

func (u *statusUC) Get(ctx context.Context, jobID string) (*JobStatus, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, domain.ErrNotFound
	}
	ewp, err := u.executions.FindWithPayment(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	return projectStatus(ewp), nil
}

func projectStatus(ewp *model.ExecutionWithPayment) *JobStatus {
	e, p := ewp.Execution, ewp.Payment
	st := &JobStatus{
		JobID:        e.ID,
		Status:       e.Status,
		AutomationID: e.AutomationID,
		CreatedAt:    e.CreatedAt,
		StartedAt:    e.StartedAt,
		CompletedAt:  e.CompletedAt,
	}
	switch e.Status {
	case model.ExecutionStatusPending:
		st.Message = "Job is queued and waiting to be processed"
	case model.ExecutionStatusRunning:
		st.Message = "Job is currently being executed"
	case model.ExecutionStatusCompleted:
		st.Message = "Job completed successfully"
		st.Result = e.Result
		st.DurationSeconds = e.DurationSeconds
		settled := p.IsSettled()
		st.PaymentSettled = &settled
	case model.ExecutionStatusFailed:
		st.Message = "Job execution failed"
		st.Error = e.Error
		st.RefundStatus = p.RefundStatusOrNone()
		if st.RefundStatus == model.RefundStatusNone {
			st.RefundStatus = model.RefundStatusPending
		}
		st.RefundMessage = refundMessage
	}
	return st
}
