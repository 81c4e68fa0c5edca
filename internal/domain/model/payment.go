package model

import (
	"encoding/json"
	"time"
)

type RefundStatus string

const (
	RefundStatusNone      RefundStatus = "none"      // no refund needed (default, also for settled payments)
	RefundStatusPending   RefundStatus = "pending"   // execution failed; awaiting approval
	RefundStatusApproved  RefundStatus = "approved"  // approved; awaiting on-chain transfer
	RefundStatusCompleted RefundStatus = "completed" // transfer confirmed
)

var refundOrder = map[RefundStatus]int{
	RefundStatusNone:      0,
	RefundStatusPending:   1,
	RefundStatusApproved:  2,
	RefundStatusCompleted: 3,
}

// Valid reports whether s is one of the known refund states.
func (s RefundStatus) Valid() bool {
	_, ok := refundOrder[s]
	return ok
}

// CanTransitionTo allows only the single forward step none→pending→approved→completed.
func (s RefundStatus) CanTransitionTo(next RefundStatus) bool {
	from, ok1 := refundOrder[s]
	to, ok2 := refundOrder[next]
	return ok1 && ok2 && to == from+1
}

// Payment is the ledger entry for one accepted x402 payment. Amount is stored in
// atomic units of the asset (USDC has 6 decimals), never as a float.
type Payment struct {
	ID           string // UUID
	AutomationID string
	Amount       int64
	ProofHeader  string          // opaque X-PAYMENT header as received
	ProofHash    string          // sha256 hex of ProofHeader; unique per payment
	Requirements json.RawMessage // snapshot of the requirements the proof was verified against
	VerifiedAt   time.Time

	SettledAt    *time.Time
	SettlementTx *string

	RefundStatus      RefundStatus
	RefundReason      *string
	RefundTxReference *string
	RefundedAt        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *Payment) IsSettled() bool { return p.SettledAt != nil }

func (p *Payment) IsRefundRequested() bool {
	return p.RefundStatus != "" && p.RefundStatus != RefundStatusNone
}

// RefundStatusOrNone normalizes an empty status read from older rows.
func (p *Payment) RefundStatusOrNone() RefundStatus {
	if p.RefundStatus == "" {
		return RefundStatusNone
	}
	return p.RefundStatus
}
