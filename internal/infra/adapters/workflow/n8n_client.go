// File: internal/infra/adapters/workflow/n8n_client.go
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"billz/internal/config"
	"billz/internal/domain/ports/adapter"
)

var _ adapter.WorkflowBackend = (*N8NClient)(nil)

// N8NClient runs automations as n8n workflows, either through a webhook path
// or the REST execute endpoint.
type N8NClient struct {
	baseURL  string
	apiKey   string
	mapping  map[string]config.WorkflowMapping
	client   *http.Client
	now      func() time.Time
	maxBytes int64
}

func NewN8NClient(cfg config.WorkflowConfig) (*N8NClient, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid n8n base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &N8NClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		mapping:  cfg.Workflows,
		client:   &http.Client{Timeout: timeout},
		now:      func() time.Time { return time.Now().UTC() },
		maxBytes: 8 << 20,
	}, nil
}

func (c *N8NClient) Execute(ctx context.Context, automationID string, params json.RawMessage) (json.RawMessage, error) {
	m, ok := c.mapping[automationID]
	if !ok {
		return nil, fmt.Errorf("no n8n workflow mapped for automation %q", automationID)
	}
	fields := map[string]any{}
	if len(params) > 0 && string(params) != "null" {
		if err := json.Unmarshal(params, &fields); err != nil {
			return nil, fmt.Errorf("params must be a JSON object: %w", err)
		}
	}

	var (
		out json.RawMessage
		err error
	)
	switch strings.ToLower(m.Type) {
	case "api":
		out, err = c.viaAPI(ctx, m.Endpoint, fields)
	default:
		out, err = c.viaWebhook(ctx, m.Endpoint, fields)
	}
	if err != nil {
		return nil, fmt.Errorf("workflow execution failed: %w", err)
	}
	return out, nil
}

func (c *N8NClient) viaWebhook(ctx context.Context, path string, fields map[string]any) (json.RawMessage, error) {
	fields["timestamp"] = c.now().Format(time.RFC3339Nano)
	status, body, err := c.post(ctx, c.baseURL+path, fields, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("n8n webhook returned status %d", status)
	}
	return asJSON(body), nil
}

func (c *N8NClient) viaAPI(ctx context.Context, workflowID string, fields map[string]any) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, errors.New("n8n api key not configured")
	}
	u := c.baseURL + "/api/v1/workflows/" + url.PathEscape(workflowID) + "/execute"
	status, body, err := c.post(ctx, u, map[string]any{"data": fields}, map[string]string{"X-N8N-API-KEY": c.apiKey})
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("n8n api returned status %d", status)
	}
	var res struct {
		Finished *bool `json:"finished"`
	}
	if len(body) == 0 || json.Unmarshal(body, &res) != nil || (res.Finished != nil && !*res.Finished) {
		return nil, errors.New("n8n workflow execution failed or did not complete")
	}
	return json.RawMessage(body), nil
}

func (c *N8NClient) post(ctx context.Context, u string, in any, headers map[string]string) (int, []byte, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// asJSON keeps JSON bodies as-is and wraps anything else as a JSON string.
func asJSON(body []byte) json.RawMessage {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return json.RawMessage("null")
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	s, _ := json.Marshal(string(body))
	return s
}

// HealthCheck reports whether n8n answers /healthz within five seconds.
func (c *N8NClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("n8n healthz returned status %d", resp.StatusCode)
	}
	return nil
}
