package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/agile-platform/backend/internal/domain/auth/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "profile:"

type RedisProfileCache struct {
	client *redis.Client
}

func NewRedisProfileCache(client *redis.Client) *RedisProfileCache {
	return &RedisProfileCache{
		client: client,
	}
}

func key(id uuid.UUID) string { return keyPrefix + id.String() }

func (r *RedisProfileCache) Get(ctx context.Context, id uuid.UUID) (model.PublicUser, bool, error) {
	raw, err := r.client.Get(ctx, key(id)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return model.PublicUser{}, false, nil
	case err != nil:
		return model.PublicUser{}, false, err
	}

	var u model.PublicUser
	if err := json.Unmarshal(raw, &u); err != nil {
		// corrupt entries are dropped and reported as a miss
		_ = r.client.Del(ctx, key(id)).Err()
		return model.PublicUser{}, false, nil
	}
	return u, true, nil
}

func (r *RedisProfileCache) Set(ctx context.Context, u model.PublicUser, ttl time.Duration) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key(u.ID), raw, safeTTL(ttl)).Err()
}

func (r *RedisProfileCache) Delete(ctx context.Context, id uuid.UUID) error {
	return r.client.Del(ctx, key(id)).Err()
}

func safeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 5 * time.Minute
	}
	return ttl
}
