package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ticketwise/enhancer/internal/core"
	apperrors "github.com/ticketwise/enhancer/internal/errors"
)

const defaultDedupTTL = 24 * time.Hour

// RedisDedupRepo implements the DedupStore contract using Redis. The stored
// value is the admission response body, so a duplicate delivery within the
// retention window replays the exact bytes issued the first time.
type RedisDedupRepo struct {
	client redis.UniversalClient
}

// NewRedisDedupRepo creates a RedisDedupRepo with the given Redis client.
func NewRedisDedupRepo(client redis.UniversalClient) *RedisDedupRepo {
	return &RedisDedupRepo{client: client}
}

func dedupKey(tenantID, deliveryID string) string {
	return fmt.Sprintf("dedup:%s:%s", tenantID, deliveryID)
}

// Admit performs a single atomic check-and-set for the delivery id.
//
// SETNX followed by EXPIRE is not atomic; SET with NX and a TTL is, so the
// same delivery arriving concurrently on two connections admits exactly once.
func (r *RedisDedupRepo) Admit(ctx context.Context, p core.AdmitParams) (core.AdmitResult, error) {
	if p.DeliveryID == "" {
		return core.AdmitResult{}, errors.New("delivery id cannot be empty")
	}
	if p.TenantID == "" {
		return core.AdmitResult{}, errors.New("tenant id cannot be empty")
	}

	ttl := p.TTL
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}

	key := dedupKey(p.TenantID, p.DeliveryID)
	cmd := r.client.SetArgs(ctx, key, p.Response, redis.SetArgs{Mode: "NX", TTL: ttl})
	status, err := cmd.Result()
	switch {
	case err == nil && status == "OK":
		return core.AdmitResult{New: true}, nil
	case errors.Is(err, redis.Nil):
		// NX condition not met: the delivery was seen before. Replay the
		// stored admission response.
		stored, getErr := r.client.Get(ctx, key).Bytes()
		if getErr != nil && !errors.Is(getErr, redis.Nil) {
			return core.AdmitResult{}, apperrors.Wrap(getErr, apperrors.ErrCodeInfrastructure, "dedup read")
		}
		return core.AdmitResult{New: false, StoredResponse: stored}, nil
	case err != nil:
		return core.AdmitResult{}, apperrors.Wrap(err, apperrors.ErrCodeInfrastructure, "dedup admit")
	default:
		return core.AdmitResult{}, fmt.Errorf("unexpected dedup SET reply: %q", status)
	}
}

// Forget drops a previously admitted delivery so a retry can be admitted
// fresh. Deleting a key that already expired is a no-op.
func (r *RedisDedupRepo) Forget(ctx context.Context, tenantID, deliveryID string) error {
	if deliveryID == "" || tenantID == "" {
		return errors.New("tenant id and delivery id cannot be empty")
	}
	if err := r.client.Del(ctx, dedupKey(tenantID, deliveryID)).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInfrastructure, "dedup forget")
	}
	return nil
}

// Health checks the Redis connection.
func (r *RedisDedupRepo) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// NewRedisClient creates a Redis client for the dedup store.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}
