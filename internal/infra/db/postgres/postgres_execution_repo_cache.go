package postgres

import (
	"context"
	"encoding/json"
	"time"

	"billz/internal/domain/model"
	"billz/internal/domain/ports/repository"
	"billz/internal/infra/metrics"
	red "billz/internal/infra/redis"
)

var _ repository.ExecutionRepository = (*executionRepoCacheDecorator)(nil)

// executionRepoCacheDecorator serves status polls for finished jobs from
// Redis. Only completed and settled rows are cached; nothing the status view
// reads changes after that. Failed rows still move through refund states.
type executionRepoCacheDecorator struct {
	repository.ExecutionRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewExecutionRepoCacheDecorator(inner repository.ExecutionRepository, cache red.RedisClient, ttl time.Duration) repository.ExecutionRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &executionRepoCacheDecorator{
		ExecutionRepository: inner,
		cache:               cache,
		ttl:                 ttl,
	}
}

func statusKey(id string) string { return "job_status:" + id }

func (d *executionRepoCacheDecorator) FindWithPayment(ctx context.Context, tx repository.Tx, id string) (*model.ExecutionWithPayment, error) {
	key := statusKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var ewp model.ExecutionWithPayment
		if json.Unmarshal([]byte(val), &ewp) == nil && ewp.Execution != nil && ewp.Payment != nil {
			metrics.IncCacheRequest("job_status", "hit")
			return &ewp, nil
		}
	}

	metrics.IncCacheRequest("job_status", "miss")
	ewp, err := d.ExecutionRepository.FindWithPayment(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if ewp.Execution.Status == model.ExecutionStatusCompleted && ewp.Payment.IsSettled() {
		if b, mErr := json.Marshal(ewp); mErr == nil {
			_ = d.cache.Set(ctx, key, b, d.ttl)
		}
	}
	return ewp, nil
}
