package adapter

import "context"

// Alerter notifies operators about conditions that need a human, such as a
// settlement that failed after the work was delivered.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}
