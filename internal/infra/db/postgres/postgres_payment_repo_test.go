//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"

	"billz/internal/domain"
	"billz/internal/domain/model"
	"billz/internal/domain/ports/repository"
)

func newTestPayment(hash string) *model.Payment {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.Payment{
		ID:           uuid.NewString(),
		AutomationID: "cs-skin-scraper",
		Amount:       2_500_000,
		ProofHeader:  "proof-" + hash,
		ProofHash:    hash,
		Requirements: json.RawMessage(`{"asset":"USDC"}`),
		VerifiedAt:   now,
		RefundStatus: model.RefundStatusNone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func newTestExecution(p *model.Payment, status model.ExecutionStatus) *model.Execution {
	return &model.Execution{
		ID:           ulid.Make().String(),
		PaymentID:    p.ID,
		AutomationID: p.AutomationID,
		Params:       json.RawMessage(`{"q":"ak"}`),
		Status:       status,
		CreatedAt:    p.CreatedAt,
	}
}

func TestPaymentRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewPaymentRepo(testPool)
	execRepo := NewExecutionRepo(testPool)

	t.Run("should save and find a payment", func(t *testing.T) {
		cleanup(t)
		p := newTestPayment("h1")
		if err := repo.Save(ctx, nil, p); err != nil {
			t.Fatalf("Failed to save payment: %v", err)
		}
		got, err := repo.FindByID(ctx, nil, p.ID)
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if got.Amount != 2_500_000 || got.RefundStatus != model.RefundStatusNone || got.IsSettled() {
			t.Errorf("unexpected payment: %+v", got)
		}
		if model.RequirementsAsset(got.Requirements) != "USDC" {
			t.Errorf("requirements snapshot not round-tripped: %s", got.Requirements)
		}
	})

	t.Run("duplicate proof hash is rejected", func(t *testing.T) {
		cleanup(t)
		if err := repo.Save(ctx, nil, newTestPayment("dup")); err != nil {
			t.Fatal(err)
		}
		err := repo.Save(ctx, nil, newTestPayment("dup"))
		if !errors.Is(err, domain.ErrDuplicatePayment) {
			t.Fatalf("expected ErrDuplicatePayment, got %v", err)
		}
	})

	t.Run("find unknown id returns ErrNotFound", func(t *testing.T) {
		cleanup(t)
		if _, err := repo.FindByID(ctx, nil, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("malformed id returns ErrNotFound", func(t *testing.T) {
		cleanup(t)
		if _, err := repo.FindByID(ctx, nil, "not-a-uuid"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if ok, err := repo.ApproveRefund(ctx, nil, "not-a-uuid"); ok || err == nil {
			t.Fatalf("expected an error for a malformed id, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("settled payments cannot be refunded and vice versa", func(t *testing.T) {
		cleanup(t)
		settled := newTestPayment("s")
		refunded := newTestPayment("r")
		for _, p := range []*model.Payment{settled, refunded} {
			if err := repo.Save(ctx, nil, p); err != nil {
				t.Fatal(err)
			}
		}
		tx := "sig-1"
		if ok, err := repo.MarkSettled(ctx, nil, settled.ID, time.Now(), &tx); err != nil || !ok {
			t.Fatalf("MarkSettled: ok=%v err=%v", ok, err)
		}
		if ok, _ := repo.MarkSettled(ctx, nil, settled.ID, time.Now(), &tx); ok {
			t.Error("second MarkSettled should not affect a row")
		}
		if ok, _ := repo.RequestRefund(ctx, nil, settled.ID, "x"); ok {
			t.Error("settled payment must not be refund-requested")
		}

		if ok, err := repo.RequestRefund(ctx, nil, refunded.ID, "boom"); err != nil || !ok {
			t.Fatalf("RequestRefund: ok=%v err=%v", ok, err)
		}
		if ok, _ := repo.MarkSettled(ctx, nil, refunded.ID, time.Now(), nil); ok {
			t.Error("refund-requested payment must not be settled")
		}
	})

	t.Run("refund lifecycle only steps forward", func(t *testing.T) {
		cleanup(t)
		p := newTestPayment("life")
		if err := repo.Save(ctx, nil, p); err != nil {
			t.Fatal(err)
		}
		if ok, _ := repo.ApproveRefund(ctx, nil, p.ID); ok {
			t.Fatal("approve from none must be rejected")
		}
		if ok, _ := repo.RequestRefund(ctx, nil, p.ID, "failed"); !ok {
			t.Fatal("request refund failed")
		}
		if ok, _ := repo.CompleteRefund(ctx, nil, p.ID, "tx", time.Now()); ok {
			t.Fatal("complete from pending must be rejected")
		}
		if ok, _ := repo.ApproveRefund(ctx, nil, p.ID); !ok {
			t.Fatal("approve failed")
		}
		if ok, _ := repo.CompleteRefund(ctx, nil, p.ID, "refund-sig", time.Now()); !ok {
			t.Fatal("complete failed")
		}
		if ok, _ := repo.CompleteRefund(ctx, nil, p.ID, "other", time.Now()); ok {
			t.Fatal("second complete must be rejected")
		}
		got, _ := repo.FindByID(ctx, nil, p.ID)
		if got.RefundStatus != model.RefundStatusCompleted || got.RefundTxReference == nil || *got.RefundTxReference != "refund-sig" || got.RefundedAt == nil {
			t.Errorf("unexpected final state: %+v", got)
		}
	})

	t.Run("pending refunds are listed only for failed executions", func(t *testing.T) {
		cleanup(t)
		failed := newTestPayment("f")
		running := newTestPayment("run")
		for _, p := range []*model.Payment{failed, running} {
			if err := repo.Save(ctx, nil, p); err != nil {
				t.Fatal(err)
			}
		}
		fe := newTestExecution(failed, model.ExecutionStatusPending)
		re := newTestExecution(running, model.ExecutionStatusPending)
		for _, e := range []*model.Execution{fe, re} {
			if err := execRepo.Create(ctx, nil, e); err != nil {
				t.Fatal(err)
			}
			if ok, _ := execRepo.ClaimPending(ctx, nil, e.ID, time.Now()); !ok {
				t.Fatal("claim failed")
			}
		}
		if ok, _ := execRepo.Fail(ctx, nil, fe.ID, "boom", time.Now()); !ok {
			t.Fatal("fail failed")
		}
		// a pending refund whose execution is still running must not be picked up
		repo.RequestRefund(ctx, nil, failed.ID, "boom")
		repo.RequestRefund(ctx, nil, running.ID, "manual")

		list, err := repo.ListPendingRefundsForFailedExecutions(ctx, nil, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 1 || list[0].ID != failed.ID {
			t.Fatalf("expected only the failed execution's payment, got %d rows", len(list))
		}

		all, err := repo.ListByRefundStatus(ctx, nil, model.RefundStatusPending, 0)
		if err != nil || len(all) != 2 {
			t.Fatalf("ListByRefundStatus: n=%d err=%v", len(all), err)
		}
		if _, err := repo.ListByRefundStatus(ctx, nil, "bogus", 0); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("payment and execution commit in one transaction", func(t *testing.T) {
		cleanup(t)
		tm := NewTxManager(testPool)
		p := newTestPayment("tx")
		e := newTestExecution(p, model.ExecutionStatusPending)
		e.PaymentID = "missing-fk" // forces the second insert to fail

		err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if err := repo.Save(ctx, tx, p); err != nil {
				return err
			}
			return execRepo.Create(ctx, tx, e)
		})
		if err == nil {
			t.Fatal("expected transaction to fail")
		}
		if _, err := repo.FindByID(ctx, nil, p.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("payment must be rolled back, got %v", err)
		}
	})
}
