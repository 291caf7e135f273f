package claim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/tailor-checkout/internal/model"
)

// RedisStore SETNX 实现，键带 TTL，过期后同一 reference 可被再次认领
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func ownerKey(reference string) string { return fmt.Sprintf("checkout:claim:%s", reference) }
func stateKey(reference string) string { return fmt.Sprintf("checkout:claim:%s:state", reference) }

func (s *RedisStore) Claim(ctx context.Context, reference, owner string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, ownerKey(reference), owner, s.ttl).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := s.rdb.Set(ctx, stateKey(reference), string(model.StateVerified), s.ttl).Err(); err != nil {
		return true, fmt.Errorf("record claim state: %w", err)
	}
	return true, nil
}

func (s *RedisStore) Advance(ctx context.Context, reference string, state model.ReconcileState) error {
	n, err := s.rdb.Exists(ctx, ownerKey(reference)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return s.rdb.Set(ctx, stateKey(reference), string(state), s.ttl).Err()
}

func (s *RedisStore) Lookup(ctx context.Context, reference string) (string, model.ReconcileState, error) {
	vals, err := s.rdb.MGet(ctx, ownerKey(reference), stateKey(reference)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", "", err
	}
	if len(vals) < 2 || vals[0] == nil {
		return "", "", ErrNotFound
	}
	owner, _ := vals[0].(string)
	state, _ := vals[1].(string)
	return owner, model.ReconcileState(state), nil
}
