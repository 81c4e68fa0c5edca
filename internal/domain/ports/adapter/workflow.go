package adapter

import (
	"context"
	"encoding/json"
)

// WorkflowBackend performs the paid-for work. Any returned error is treated as a
// failed attempt by the caller.
type WorkflowBackend interface {
	Execute(ctx context.Context, automationID string, params json.RawMessage) (json.RawMessage, error)
}
