// File: internal/infra/adapters/transfer/signer_client.go
package transfer

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

	"billz/internal/config"
	"billz/internal/domain/ports/adapter"
)

var _ adapter.FundsTransfer = (*SignerClient)(nil)

// SignerClient asks a custody signer service to send SPL tokens from the
// operational wallet and waits for its confirmation.
type SignerClient struct {
	endpoint string
	apiKey   string
	decimals int
	client   *http.Client
}

type transferRequest struct {
	Destination string `json:"destination"`
	Mint        string `json:"mint"`
	Amount      string `json:"amount"`
	Decimals    int    `json:"decimals"`
	Reference   string `json:"reference,omitempty"`
}

type transferResponse struct {
	Signature string `json:"signature"`
	Confirmed bool   `json:"confirmed"`
	Error     string `json:"error"`
}

func NewSignerClient(cfg config.TransferConfig) (*SignerClient, error) {
	if _, err := url.ParseRequestURI(cfg.SignerURL); err != nil {
		return nil, fmt.Errorf("invalid signer url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	decimals := cfg.Decimals
	if decimals <= 0 {
		decimals = 6
	}
	return &SignerClient{
		endpoint: strings.TrimRight(cfg.SignerURL, "/") + "/v1/transfers",
		apiKey:   cfg.APIKey,
		decimals: decimals,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (s *SignerClient) Transfer(ctx context.Context, destination string, amount int64, asset string) (string, error) {
	if destination == "" {
		return "", errors.New("destination empty")
	}
	if amount <= 0 {
		return "", fmt.Errorf("amount must be positive, got %d", amount)
	}
	if asset == "" {
		return "", errors.New("asset empty")
	}
	b, err := json.Marshal(transferRequest{
		Destination: destination,
		Mint:        asset,
		Amount:      strconv.FormatInt(amount, 10),
		Decimals:    s.decimals,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("signer request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	var out transferResponse
	_ = json.Unmarshal(body, &out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if out.Error != "" {
			return "", fmt.Errorf("signer returned %d: %s", resp.StatusCode, out.Error)
		}
		return "", fmt.Errorf("signer returned %d", resp.StatusCode)
	}
	if out.Signature == "" {
		return "", errors.New("signer response missing signature")
	}
	if !out.Confirmed {
		return "", fmt.Errorf("transfer %s not confirmed", out.Signature)
	}
	return out.Signature, nil
}
