//go:build !integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"billz/internal/domain/model"
	"billz/internal/domain/ports/repository"
)

var errMiss = errors.New("redis: nil")

func TestExecutionRepoCacheDecorator(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	completed := &model.ExecutionWithPayment{
		Execution: &model.Execution{ID: "01J0", PaymentID: "p-1", AutomationID: "cs-skin-scraper",
			Status: model.ExecutionStatusCompleted, CreatedAt: now, Result: json.RawMessage(`{"ok":true}`)},
		Payment: &model.Payment{ID: "p-1", SettledAt: &now, RefundStatus: model.RefundStatusNone},
	}

	t.Run("FindWithPayment should return from cache on hit", func(t *testing.T) {
		b, _ := json.Marshal(completed)
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				if key != "job_status:01J0" {
					t.Errorf("unexpected key %q", key)
				}
				return string(b), nil
			},
		}
		innerCalled := false
		inner := &mockInnerExecutionRepo{
			FindWithPaymentFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.ExecutionWithPayment, error) {
				innerCalled = true
				return nil, nil
			},
		}

		got, err := NewExecutionRepoCacheDecorator(inner, mockRedis, 0).FindWithPayment(ctx, nil, "01J0")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if innerCalled {
			t.Error("inner repository should not be called on a cache hit")
		}
		if got.Execution.Status != model.ExecutionStatusCompleted || got.Payment.SettledAt == nil {
			t.Errorf("wrong cached value: %+v", got.Execution)
		}
	})

	t.Run("completed rows are written through on miss", func(t *testing.T) {
		var setKey string
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) { return "", errMiss },
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				setKey = key
				return nil
			},
		}
		inner := &mockInnerExecutionRepo{
			FindWithPaymentFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.ExecutionWithPayment, error) {
				return completed, nil
			},
		}
		if _, err := NewExecutionRepoCacheDecorator(inner, mockRedis, time.Minute).FindWithPayment(ctx, nil, "01J0"); err != nil {
			t.Fatal(err)
		}
		if setKey != "job_status:01J0" {
			t.Errorf("expected completed row to be cached, set key=%q", setKey)
		}
	})

	t.Run("unfinished, failed and unsettled rows are never cached", func(t *testing.T) {
		for _, st := range []model.ExecutionStatus{model.ExecutionStatusPending, model.ExecutionStatusRunning, model.ExecutionStatusFailed, model.ExecutionStatusCompleted} {
			mockRedis := &mockRedisClient{
				GetFunc: func(ctx context.Context, key string) (string, error) { return "", errMiss },
				SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
					t.Errorf("status %s should not be cached", st)
					return nil
				},
			}
			row := &model.ExecutionWithPayment{
				Execution: &model.Execution{ID: "x", Status: st},
				Payment:   &model.Payment{ID: "p"},
			}
			inner := &mockInnerExecutionRepo{
				FindWithPaymentFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.ExecutionWithPayment, error) {
					return row, nil
				},
			}
			if _, err := NewExecutionRepoCacheDecorator(inner, mockRedis, 0).FindWithPayment(ctx, nil, "x"); err != nil {
				t.Fatal(err)
			}
		}
	})
}
