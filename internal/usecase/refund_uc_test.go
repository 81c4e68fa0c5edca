//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"billz/internal/domain"
	"billz/internal/domain/model"
	"billz/internal/domain/ports/adapter"
	"billz/internal/domain/ports/repository"
	"billz/internal/infra/db/memory"
	"billz/internal/usecase"
)

// failJob queues a job and runs it against a backend that always fails.
func failJob(t *testing.T, store *memory.Store) *model.ExecutionWithPayment {
	t.Helper()
	ctx := context.Background()
	res := submitJob(t, store)
	wf := &MockWorkflow{
		ExecuteFunc: func(ctx context.Context, automationID string, params json.RawMessage) (json.RawMessage, error) {
			return nil, errors.New("n8n down")
		},
	}
	if _, err := newExecUC(store, wf, &MockProtocol{}, nil, &recordingSleeper{}).ProcessNext(ctx); err != nil {
		t.Fatal(err)
	}
	ewp, err := store.Executions().FindWithPayment(ctx, nil, res.JobID)
	if err != nil {
		t.Fatal(err)
	}
	return ewp
}

func newRefundUC(store *memory.Store, tr *MockTransfer, locker usecase.Locker, alerter *MockAlerter) usecase.RefundUseCase {
	var al adapter.Alerter
	if alerter != nil {
		al = alerter
	}
	return usecase.NewRefundUseCase(store.Payments(), tr, locker, al,
		usecase.RefundConfig{ApproveBatch: 10, ExecuteBatch: 5, LockTTL: time.Minute, DefaultAsset: "FALLBACK"}, newTestLogger())
}

// unreadablePayments fails every FindByID the way a rejected key does in Postgres.
type unreadablePayments struct {
	*memory.PaymentRepo
}

func (unreadablePayments) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	return nil, domain.ErrReadDatabaseRow
}

// countingThrottle records keys and answers from AllowFunc.
type countingThrottle struct {
	Keys      []string
	AllowFunc func(key string) (bool, error)
}

func (c *countingThrottle) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	c.Keys = append(c.Keys, key)
	return c.AllowFunc(key)
}

func TestRefundUseCase_ApprovePending(t *testing.T) {
	ctx := context.Background()

	t.Run("only refunds of failed executions are auto-approved", func(t *testing.T) {
		store := memory.NewStore()
		failed := failJob(t, store)

		// a pending refund whose execution is still pending stays untouched
		queued := submitJob(t, store)
		other, _ := store.Executions().FindByID(ctx, nil, queued.JobID)
		store.Payments().RequestRefund(ctx, nil, other.PaymentID, "manual")

		n, err := newRefundUC(store, &MockTransfer{}, nil, nil).ApprovePending(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Fatalf("approved %d, want 1", n)
		}
		p, _ := store.Payments().FindByID(ctx, nil, failed.Payment.ID)
		if p.RefundStatus != model.RefundStatusApproved {
			t.Errorf("failed job refund = %s, want approved", p.RefundStatus)
		}
		q, _ := store.Payments().FindByID(ctx, nil, other.PaymentID)
		if q.RefundStatus != model.RefundStatusPending {
			t.Errorf("unrelated refund = %s, want pending", q.RefundStatus)
		}

		n, _ = newRefundUC(store, &MockTransfer{}, nil, nil).ApprovePending(ctx)
		if n != 0 {
			t.Errorf("second pass approved %d, want 0", n)
		}
	})
}

func TestRefundUseCase_ExecuteApproved(t *testing.T) {
	ctx := context.Background()

	t.Run("transfer failure leaves the refund approved, success completes it once", func(t *testing.T) {
		store := memory.NewStore()
		failed := failJob(t, store)
		alerter := &MockAlerter{}
		tr := &MockTransfer{
			TransferFunc: func(ctx context.Context, destination string, amount int64, asset string) (string, error) {
				return "", errors.New("rpc timeout")
			},
		}
		uc := newRefundUC(store, tr, nil, alerter)
		if _, err := uc.ApprovePending(ctx); err != nil {
			t.Fatal(err)
		}

		n, err := uc.ExecuteApproved(ctx)
		if err != nil || n != 0 {
			t.Fatalf("expected (0, nil), got (%d, %v)", n, err)
		}
		p, _ := store.Payments().FindByID(ctx, nil, failed.Payment.ID)
		if p.RefundStatus != model.RefundStatusApproved || p.RefundTxReference != nil {
			t.Fatalf("refund should stay approved: %+v", p)
		}
		if alerter.Count() != 1 {
			t.Errorf("expected one alert, got %d", alerter.Count())
		}

		tr.TransferFunc = nil
		n, err = uc.ExecuteApproved(ctx)
		if err != nil || n != 1 {
			t.Fatalf("expected (1, nil), got (%d, %v)", n, err)
		}
		p, _ = store.Payments().FindByID(ctx, nil, failed.Payment.ID)
		if p.RefundStatus != model.RefundStatusCompleted || p.RefundTxReference == nil || *p.RefundTxReference != "refund-sig" || p.RefundedAt == nil {
			t.Fatalf("refund not completed: %+v", p)
		}

		n, _ = uc.ExecuteApproved(ctx)
		if n != 0 || len(tr.Calls) != 2 {
			t.Errorf("completed refund must not be transferred again: n=%d calls=%d", n, len(tr.Calls))
		}

		last := tr.Calls[len(tr.Calls)-1]
		if last.Destination != "Payer111" || last.Amount != 2_500_000 || last.Asset != "USDC-MINT" {
			t.Errorf("unexpected transfer: %+v", last)
		}
	})

	t.Run("a held lock skips the payment", func(t *testing.T) {
		store := memory.NewStore()
		failed := failJob(t, store)
		locker := NewMockLocker()
		locker.Hold("refund:" + failed.Payment.ID)
		tr := &MockTransfer{}
		uc := newRefundUC(store, tr, locker, nil)
		uc.ApprovePending(ctx)

		n, err := uc.ExecuteApproved(ctx)
		if err != nil || n != 0 || len(tr.Calls) != 0 {
			t.Fatalf("expected skip, got n=%d err=%v calls=%d", n, err, len(tr.Calls))
		}
	})

	t.Run("lock is released after the transfer", func(t *testing.T) {
		store := memory.NewStore()
		failJob(t, store)
		locker := NewMockLocker()
		uc := newRefundUC(store, &MockTransfer{}, locker, nil)
		uc.ApprovePending(ctx)
		if n, _ := uc.ExecuteApproved(ctx); n != 1 {
			t.Fatalf("completed %d, want 1", n)
		}
		if len(locker.held) != 0 {
			t.Errorf("lock still held: %v", locker.held)
		}
	})
}

func TestRefundUseCase_FailureAlerts(t *testing.T) {
	ctx := context.Background()
	failing := func() *MockTransfer {
		return &MockTransfer{
			TransferFunc: func(ctx context.Context, destination string, amount int64, asset string) (string, error) {
				return "", errors.New("rpc timeout")
			},
		}
	}

	t.Run("a persistently failing transfer alerts once per window", func(t *testing.T) {
		store := memory.NewStore()
		failJob(t, store)
		alerter := &MockAlerter{}
		tr := failing()
		uc := newRefundUC(store, tr, nil, alerter)
		uc.ApprovePending(ctx)

		for i := 0; i < 5; i++ {
			if _, err := uc.ExecuteApproved(ctx); err != nil {
				t.Fatal(err)
			}
		}
		if len(tr.Calls) != 5 {
			t.Fatalf("transfer attempted %d times, want 5", len(tr.Calls))
		}
		if alerter.Count() != 1 {
			t.Errorf("expected one alert, got %d", alerter.Count())
		}
	})

	t.Run("a shared throttle decides, and its errors do not swallow alerts", func(t *testing.T) {
		store := memory.NewStore()
		failed := failJob(t, store)
		alerter := &MockAlerter{}
		throttle := &countingThrottle{AllowFunc: func(string) (bool, error) { return false, errors.New("redis down") }}
		uc := usecase.NewRefundUseCase(store.Payments(), failing(), nil, alerter,
			usecase.RefundConfig{DefaultAsset: "FALLBACK"}, newTestLogger(), usecase.WithAlertThrottle(throttle))
		uc.ApprovePending(ctx)

		uc.ExecuteApproved(ctx)
		if alerter.Count() != 1 {
			t.Fatalf("expected an alert when the throttle fails, got %d", alerter.Count())
		}
		if len(throttle.Keys) != 1 || throttle.Keys[0] != "refund_alert:"+failed.Payment.ID {
			t.Errorf("unexpected throttle keys %v", throttle.Keys)
		}

		throttle.AllowFunc = func(string) (bool, error) { return false, nil }
		uc.ExecuteApproved(ctx)
		if alerter.Count() != 1 {
			t.Errorf("throttled failure should not alert, got %d alerts", alerter.Count())
		}
	})
}

func TestRefundUseCase_ManualReview(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	queued := submitJob(t, store)
	e, _ := store.Executions().FindByID(ctx, nil, queued.JobID)
	uc := newRefundUC(store, &MockTransfer{}, nil, nil)

	if err := uc.Approve(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := uc.Approve(ctx, e.PaymentID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("approve without a pending refund should conflict, got %v", err)
	}

	store.Payments().RequestRefund(ctx, nil, e.PaymentID, "customer complaint")
	if err := uc.Approve(ctx, e.PaymentID); err != nil {
		t.Fatalf("manual approve: %v", err)
	}
	list, err := uc.List(ctx, model.RefundStatusApproved, 10)
	if err != nil || len(list) != 1 || list[0].ID != e.PaymentID {
		t.Fatalf("List approved: %v %v", list, err)
	}
	if _, err := uc.List(ctx, "weird", 10); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestRefundUseCase_ApproveMalformedID(t *testing.T) {
	store := memory.NewStore()
	uc := usecase.NewRefundUseCase(unreadablePayments{store.Payments()}, &MockTransfer{}, nil, nil,
		usecase.RefundConfig{}, newTestLogger())

	if err := uc.Approve(context.Background(), "not-a-uuid"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a malformed id, got %v", err)
	}
}
