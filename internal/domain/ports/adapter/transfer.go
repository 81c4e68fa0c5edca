package adapter

import "context"

// FundsTransfer moves amount (atomic units) of asset to destination and returns
// the transaction reference once confirmed.
type FundsTransfer interface {
	Transfer(ctx context.Context, destination string, amount int64, asset string) (string, error)
}
