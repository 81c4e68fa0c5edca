package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"billz/internal/domain/ports/adapter"
)

var _ adapter.Alerter = (*NoopAlerter)(nil)

// NoopAlerter implements adapter.Alerter for local/dev runs.
// It logs alerts instead of sending real Telegram messages.
type NoopAlerter struct {
	log zerolog.Logger
}

func NewNoopAlerter(logger *zerolog.Logger) *NoopAlerter {
	return &NoopAlerter{log: logger.With().Str("component", "noop-alerts").Logger()}
}

func (n *NoopAlerter) Alert(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.log.Warn().Str("alert", text).Msg("alert")
	return nil
}
