package model

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"billz/internal/domain"
)

const X402Version = 1

// PaymentRequirements is the x402 "accepts" entry a client has to satisfy.
// MaxAmountRequired is a decimal string of atomic units, as on the wire.
type PaymentRequirements struct {
	Scheme            string         `json:"scheme"`
	Network           string         `json:"network"`
	MaxAmountRequired string         `json:"maxAmountRequired"`
	Resource          string         `json:"resource"`
	Description       string         `json:"description"`
	MimeType          string         `json:"mimeType"`
	PayTo             string         `json:"payTo"`
	MaxTimeoutSeconds int            `json:"maxTimeoutSeconds"`
	Asset             string         `json:"asset"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// PaymentProof is the decoded X-PAYMENT header.
type PaymentProof struct {
	X402Version int             `json:"x402Version"`
	Scheme      string          `json:"scheme"`
	Network     string          `json:"network"`
	Payload     json.RawMessage `json:"payload"`
}

type proofPayload struct {
	Sender string `json:"sender"`
	From   string `json:"from"`
	Payer  string `json:"payer"`

	Authorization *struct {
		From string `json:"from"`
	} `json:"authorization"`
}

// DecodePaymentProof parses a base64 (std or url alphabet) JSON payment header.
func DecodePaymentProof(header string) (*PaymentProof, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, domain.ErrInvalidPaymentProof
	}
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(header, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: not base64", domain.ErrInvalidPaymentProof)
		}
	}
	var p PaymentProof
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPaymentProof, err)
	}
	return &p, nil
}

// Payer returns the address that signed the payment; refunds go back to it.
func (p *PaymentProof) Payer() (string, error) {
	if len(p.Payload) == 0 {
		return "", fmt.Errorf("%w: empty payload", domain.ErrInvalidPaymentProof)
	}
	var pl proofPayload
	if err := json.Unmarshal(p.Payload, &pl); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidPaymentProof, err)
	}
	for _, a := range []string{pl.Sender, pl.From, pl.Payer} {
		if a = strings.TrimSpace(a); a != "" {
			return a, nil
		}
	}
	if pl.Authorization != nil && pl.Authorization.From != "" {
		return pl.Authorization.From, nil
	}
	return "", fmt.Errorf("%w: payer address missing", domain.ErrInvalidPaymentProof)
}

// RequirementsAsset extracts the asset reference from a stored requirements snapshot.
func RequirementsAsset(snapshot json.RawMessage) string {
	var r PaymentRequirements
	if err := json.Unmarshal(snapshot, &r); err != nil {
		return ""
	}
	return r.Asset
}
