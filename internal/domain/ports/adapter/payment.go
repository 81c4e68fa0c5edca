package adapter

import (
	"context"

	"billz/internal/domain/model"
)

// RequirementsParams describes what a resource costs and where it can be paid.
type RequirementsParams struct {
	Amount            int64 // atomic units
	Asset             string
	Network           string
	Description       string
	Resource          string
	MimeType          string
	MaxTimeoutSeconds int
}

// VerifyResult is the facilitator's answer to a verify call.
type VerifyResult struct {
	Valid         bool
	InvalidReason string
	Payer         string
}

// SettleResult is the facilitator's answer to a settle call.
type SettleResult struct {
	Success     bool
	ErrorReason string
	Transaction string
	Network     string
	Payer       string
}

// PaymentProtocol is the x402 capability: build requirements, verify a proof,
// settle it once the paid work is delivered.
type PaymentProtocol interface {
	BuildRequirements(ctx context.Context, p RequirementsParams) (*model.PaymentRequirements, error)
	Verify(ctx context.Context, proofHeader string, req *model.PaymentRequirements) (*VerifyResult, error)
	Settle(ctx context.Context, proofHeader string, req *model.PaymentRequirements) (*SettleResult, error)
}
