package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager executes fn inside a database transaction and hands the
// backend-specific handle to fn as tx. Repositories accept that handle in their
// tx parameter and fall back to the pool when it is nil.
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
//		if err := payments.Save(ctx, tx, p); err != nil {
//			return err
//		}
//		return executions.Create(ctx, tx, e)
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
