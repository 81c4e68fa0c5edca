package model

import (
	"encoding/json"
	"time"
)

type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

func (s ExecutionStatus) Valid() bool {
	switch s {
	case ExecutionStatusPending, ExecutionStatusRunning, ExecutionStatusCompleted, ExecutionStatusFailed:
		return true
	}
	return false
}

func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// CanTransitionTo encodes pending → running → {completed | failed}.
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	switch s {
	case ExecutionStatusPending:
		return next == ExecutionStatusRunning
	case ExecutionStatusRunning:
		return next == ExecutionStatusCompleted || next == ExecutionStatusFailed
	}
	return false
}

// Execution is one paid job, owned 1:1 by a Payment.
type Execution struct {
	ID           string // ULID
	PaymentID    string
	AutomationID string
	Params       json.RawMessage
	Status       ExecutionStatus

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	// success
	Result          json.RawMessage
	DurationSeconds *int64
	// failure
	Error *string
}

// ElapsedSeconds is the floor of the wall-clock delta between creation and now.
func (e *Execution) ElapsedSeconds(now time.Time) int64 {
	d := now.Sub(e.CreatedAt)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

// ExecutionWithPayment is the joined read used by the status query.
type ExecutionWithPayment struct {
	Execution *Execution
	Payment   *Payment
}
