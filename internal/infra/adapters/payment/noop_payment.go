package payment

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"billz/internal/domain/model"
	"billz/internal/domain/ports/adapter"
)

var _ adapter.PaymentProtocol = (*NoopProtocol)(nil)

// NoopProtocol accepts any well-formed proof. Used by -dev runs.
type NoopProtocol struct {
	mu    sync.Mutex
	seq   int64
	payTo string
}

func NewNoopProtocol(payTo string) *NoopProtocol {
	if payTo == "" {
		payTo = "DevTreasury1111111111111111111111111111111"
	}
	return &NoopProtocol{payTo: payTo}
}

func (n *NoopProtocol) BuildRequirements(ctx context.Context, p adapter.RequirementsParams) (*model.PaymentRequirements, error) {
	return &model.PaymentRequirements{
		Scheme:            "exact",
		Network:           p.Network,
		MaxAmountRequired: strconv.FormatInt(p.Amount, 10),
		Resource:          p.Resource,
		Description:       p.Description,
		MimeType:          p.MimeType,
		PayTo:             n.payTo,
		MaxTimeoutSeconds: p.MaxTimeoutSeconds,
		Asset:             p.Asset,
	}, nil
}

func (n *NoopProtocol) Verify(ctx context.Context, proofHeader string, req *model.PaymentRequirements) (*adapter.VerifyResult, error) {
	proof, err := model.DecodePaymentProof(proofHeader)
	if err != nil {
		return &adapter.VerifyResult{Valid: false, InvalidReason: "malformed_payment_header"}, nil
	}
	payer, err := proof.Payer()
	if err != nil {
		return &adapter.VerifyResult{Valid: false, InvalidReason: "missing_payer"}, nil
	}
	return &adapter.VerifyResult{Valid: true, Payer: payer}, nil
}

func (n *NoopProtocol) Settle(ctx context.Context, proofHeader string, req *model.PaymentRequirements) (*adapter.SettleResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	return &adapter.SettleResult{Success: true, Transaction: fmt.Sprintf("noop-settle-%d", n.seq), Network: req.Network}, nil
}
