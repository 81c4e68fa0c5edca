package transfer

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"billz/internal/domain/ports/adapter"
)

var _ adapter.FundsTransfer = (*NoopTransfer)(nil)

// NoopTransfer pretends every refund lands. Used by -dev runs.
type NoopTransfer struct{}

func NewNoopTransfer() *NoopTransfer { return &NoopTransfer{} }

func (NoopTransfer) Transfer(ctx context.Context, destination string, amount int64, asset string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if destination == "" || amount <= 0 {
		return "", fmt.Errorf("invalid transfer to %q of %d", destination, amount)
	}
	return "dev-refund-" + uuid.NewString(), nil
}
