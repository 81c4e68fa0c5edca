// File: internal/infra/adapters/payment/x402_facilitator.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"billz/internal/domain/model"
	"billz/internal/domain/ports/adapter"
)

var _ adapter.PaymentProtocol = (*FacilitatorClient)(nil)

// FacilitatorClient implements adapter.PaymentProtocol against an x402
// facilitator's /verify and /settle endpoints.
type FacilitatorClient struct {
	baseURL  string
	payTo    string
	client   *http.Client
	maxBytes int64
}

func NewFacilitatorClient(facilitatorURL, treasuryAddress string, timeout time.Duration) (*FacilitatorClient, error) {
	if _, err := url.ParseRequestURI(facilitatorURL); err != nil {
		return nil, fmt.Errorf("invalid facilitator url: %w", err)
	}
	if treasuryAddress == "" {
		return nil, errors.New("treasury address empty")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FacilitatorClient{
		baseURL:  strings.TrimRight(facilitatorURL, "/"),
		payTo:    treasuryAddress,
		client:   &http.Client{Timeout: timeout},
		maxBytes: 1 << 20,
	}, nil
}

func (f *FacilitatorClient) BuildRequirements(ctx context.Context, p adapter.RequirementsParams) (*model.PaymentRequirements, error) {
	if p.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d", p.Amount)
	}
	if p.Asset == "" || p.Network == "" {
		return nil, errors.New("asset and network are required")
	}
	return &model.PaymentRequirements{
		Scheme:            "exact",
		Network:           p.Network,
		MaxAmountRequired: strconv.FormatInt(p.Amount, 10),
		Resource:          p.Resource,
		Description:       p.Description,
		MimeType:          p.MimeType,
		PayTo:             f.payTo,
		MaxTimeoutSeconds: p.MaxTimeoutSeconds,
		Asset:             p.Asset,
	}, nil
}

type facilitatorRequest struct {
	X402Version         int                        `json:"x402Version"`
	PaymentHeader       string                     `json:"paymentHeader"`
	PaymentPayload      *model.PaymentProof        `json:"paymentPayload,omitempty"`
	PaymentRequirements *model.PaymentRequirements `json:"paymentRequirements"`
}

func (f *FacilitatorClient) body(proofHeader string, req *model.PaymentRequirements) facilitatorRequest {
	body := facilitatorRequest{
		X402Version:         model.X402Version,
		PaymentHeader:       proofHeader,
		PaymentRequirements: req,
	}
	// the decoded form is sent alongside when the header parses
	if proof, err := model.DecodePaymentProof(proofHeader); err == nil {
		body.PaymentPayload = proof
	}
	return body
}

func (f *FacilitatorClient) Verify(ctx context.Context, proofHeader string, req *model.PaymentRequirements) (*adapter.VerifyResult, error) {
	if _, err := model.DecodePaymentProof(proofHeader); err != nil {
		return &adapter.VerifyResult{Valid: false, InvalidReason: "malformed_payment_header"}, nil
	}
	var out struct {
		IsValid       bool   `json:"isValid"`
		InvalidReason string `json:"invalidReason"`
		Payer         string `json:"payer"`
	}
	if err := f.post(ctx, "/verify", f.body(proofHeader, req), &out); err != nil {
		return nil, err
	}
	return &adapter.VerifyResult{Valid: out.IsValid, InvalidReason: out.InvalidReason, Payer: out.Payer}, nil
}

func (f *FacilitatorClient) Settle(ctx context.Context, proofHeader string, req *model.PaymentRequirements) (*adapter.SettleResult, error) {
	var out struct {
		Success     bool   `json:"success"`
		ErrorReason string `json:"errorReason"`
		Transaction string `json:"transaction"`
		Network     string `json:"network"`
		Payer       string `json:"payer"`
	}
	if err := f.post(ctx, "/settle", f.body(proofHeader, req), &out); err != nil {
		return nil, err
	}
	return &adapter.SettleResult{
		Success:     out.Success,
		ErrorReason: out.ErrorReason,
		Transaction: out.Transaction,
		Network:     out.Network,
		Payer:       out.Payer,
	}, nil
}

// post decodes out from any response that carries JSON; a non-2xx status
// without a decodable body is an error.
func (f *FacilitatorClient) post(ctx context.Context, path string, in any, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("facilitator %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return fmt.Errorf("facilitator %s: read body: %w", path, err)
	}
	if decErr := json.Unmarshal(raw, out); decErr != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("facilitator %s: http %d", path, resp.StatusCode)
		}
		return fmt.Errorf("facilitator %s: decode: %w", path, decErr)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("facilitator %s: http %d", path, resp.StatusCode)
	}
	return nil
}
