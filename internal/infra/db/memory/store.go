// Package memory is an in-process store used by -dev runs and unit tests.
// It keeps the conditional-update semantics of the Postgres repositories.
package memory

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v4"

	"billz/internal/domain"
	"billz/internal/domain/model"
	"billz/internal/domain/ports/repository"
)

type Store struct {
	mu         sync.Mutex
	payments   map[string]*model.Payment
	byHash     map[string]string
	executions map[string]*model.Execution

	txMu sync.Mutex
}

func NewStore() *Store {
	return &Store{
		payments:   map[string]*model.Payment{},
		byHash:     map[string]string{},
		executions: map[string]*model.Execution{},
	}
}

func (s *Store) Payments() *PaymentRepo     { return &PaymentRepo{s: s} }
func (s *Store) Executions() *ExecutionRepo { return &ExecutionRepo{s: s} }
func (s *Store) TxManager() *TxManager      { return &TxManager{s: s} }

// memTx collects undo steps for writes made inside WithTx.
type memTx struct {
	undo []func()
}

func (s *Store) record(tx repository.Tx, undo func()) error {
	switch t := tx.(type) {
	case nil:
		return nil
	case *memTx:
		t.undo = append(t.undo, undo)
		return nil
	default:
		return domain.ErrInvalidExecContext
	}
}

var _ repository.TransactionManager = (*TxManager)(nil)

// TxManager serialises transactions and rolls back their writes when fn fails.
type TxManager struct{ s *Store }

func (m *TxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.s.txMu.Lock()
	defer m.s.txMu.Unlock()

	tx := &memTx{}
	if err := fn(ctx, tx); err != nil {
		m.s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		m.s.mu.Unlock()
		return err
	}
	return nil
}

func clonePayment(p *model.Payment) *model.Payment {
	c := *p
	return &c
}

func cloneExecution(e *model.Execution) *model.Execution {
	c := *e
	return &c
}
