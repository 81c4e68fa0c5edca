package redis

import (
	"context"
	"time"

	"billz/internal/infra/metrics"
)

// ProofGuard rejects a replayed X-PAYMENT header before it reaches the
// facilitator. The database unique index on proof_hash stays authoritative.
type ProofGuard struct {
	client RedisClient
	ttl    time.Duration
}

func NewProofGuard(client RedisClient, ttl time.Duration) *ProofGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ProofGuard{client: client, ttl: ttl}
}

func proofKey(hash string) string { return "x402:proof:" + hash }

// Reserve returns false when the proof hash is already held.
func (g *ProofGuard) Reserve(ctx context.Context, hash string) (bool, error) {
	ok, err := g.client.SetNX(ctx, proofKey(hash), time.Now().UTC().Unix(), g.ttl)
	switch {
	case err != nil:
		metrics.IncGuard("proof", "error")
		return false, err
	case !ok:
		metrics.IncGuard("proof", "duplicate")
	default:
		metrics.IncGuard("proof", "reserved")
	}
	return ok, nil
}

// Release frees a reservation whose payment never got persisted.
func (g *ProofGuard) Release(ctx context.Context, hash string) error {
	return g.client.Del(ctx, proofKey(hash))
}
