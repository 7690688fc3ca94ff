package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisCredentialRepository struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCredentialRepository stores each scope as one hash under prefix+scope.
// The hash expires at the retainUntil of its latest Put.
func NewRedisCredentialRepository(client redis.UniversalClient, prefix string) CredentialRepository {
	return &redisCredentialRepository{client: client, prefix: prefix}
}

func (r *redisCredentialRepository) key(scope string) string {
	return r.prefix + scope
}

func (r *redisCredentialRepository) Get(ctx context.Context, scope string, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	vals, err := r.client.HMGet(ctx, r.key(scope), keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hmget: %w", err)
	}
	for i, val := range vals {
		if s, ok := val.(string); ok {
			out[keys[i]] = s
		}
	}
	return out, nil
}

func (r *redisCredentialRepository) Put(ctx context.Context, scope string, entries map[string]string, retainUntil time.Time) error {
	if len(entries) == 0 {
		return nil
	}
	values := make([]any, 0, len(entries)*2)
	for key, val := range entries {
		values = append(values, key, val)
	}

	key := r.key(scope)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values...)
		if retainUntil.IsZero() {
			pipe.Persist(ctx, key)
		} else {
			pipe.PExpireAt(ctx, key, retainUntil)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

// Delete removes the named fields. Redis drops the hash itself once its last
// field is gone, so clearing every bundle key leaves no key behind.
func (r *redisCredentialRepository) Delete(ctx context.Context, scope string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.HDel(ctx, r.key(scope), keys...).Err(); err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}
