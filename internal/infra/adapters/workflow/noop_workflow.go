package workflow

import (
	"context"
	"encoding/json"
	"time"

	"billz/internal/domain/ports/adapter"
)

var _ adapter.WorkflowBackend = (*NoopWorkflow)(nil)

// NoopWorkflow echoes params back after a short delay. Used by -dev runs.
type NoopWorkflow struct {
	Delay time.Duration
}

func NewNoopWorkflow() *NoopWorkflow { return &NoopWorkflow{Delay: 500 * time.Millisecond} }

func (n *NoopWorkflow) Execute(ctx context.Context, automationID string, params json.RawMessage) (json.RawMessage, error) {
	select {
	case <-time.After(n.Delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return json.Marshal(map[string]any{
		"automationId": automationID,
		"params":       params,
		"finishedAt":   time.Now().UTC(),
	})
}

func (n *NoopWorkflow) HealthCheck(ctx context.Context) error { return nil }
