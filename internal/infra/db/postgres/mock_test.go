//go:build !integration

package postgres

import (
	"context"
	"encoding/json"
	"time"

	"billz/internal/domain/model"
	"billz/internal/domain/ports/repository"
	red "billz/internal/infra/redis"
)

// mockInnerExecutionRepo mocks the database repository the cache decorator wraps.
type mockInnerExecutionRepo struct {
	FindWithPaymentFunc func(ctx context.Context, tx repository.Tx, id string) (*model.ExecutionWithPayment, error)
}

var _ repository.ExecutionRepository = (*mockInnerExecutionRepo)(nil)

func (m *mockInnerExecutionRepo) Create(ctx context.Context, tx repository.Tx, e *model.Execution) error {
	return nil
}
func (m *mockInnerExecutionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Execution, error) {
	return nil, nil
}
func (m *mockInnerExecutionRepo) FindWithPayment(ctx context.Context, tx repository.Tx, id string) (*model.ExecutionWithPayment, error) {
	return m.FindWithPaymentFunc(ctx, tx, id)
}
func (m *mockInnerExecutionRepo) FindOldestPending(ctx context.Context, tx repository.Tx) (*model.Execution, error) {
	return nil, nil
}
func (m *mockInnerExecutionRepo) ClaimPending(ctx context.Context, tx repository.Tx, id string, startedAt time.Time) (bool, error) {
	return false, nil
}
func (m *mockInnerExecutionRepo) Complete(ctx context.Context, tx repository.Tx, id string, result json.RawMessage, completedAt time.Time, durationSeconds int64) (bool, error) {
	return false, nil
}
func (m *mockInnerExecutionRepo) Fail(ctx context.Context, tx repository.Tx, id string, errMsg string, completedAt time.Time) (bool, error) {
	return false, nil
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc   func(ctx context.Context, key string) (string, error)
	SetFunc   func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc   func(ctx context.Context, keys ...string) error
	PingFunc  func(ctx context.Context) error
	CloseFunc func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return true, nil
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	return true, nil
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return 1, nil
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}
func (m *mockRedisClient) Close() error { return m.CloseFunc() }
