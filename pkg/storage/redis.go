package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "breatheeasy"

// RedisStore implements Store on Redis so the trainer and every API
// instance share one artifact set. A zero TTL keeps artifacts forever.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
}

// NewRedisStore connects to Redis at addr and pings it.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}
	if ttl < 0 {
		return nil, errors.New("redis ttl must be >= 0")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func artifactKey(id string) string {
	return fmt.Sprintf("%s:artifact:%s", keyPrefix, id)
}

func latestKey(variant string) string {
	return fmt.Sprintf("%s:latest:%s", keyPrefix, variant)
}

// Put stores the artifact and points the variant's latest key at it in one
// transaction.
func (r *RedisStore) Put(ctx context.Context, a Artifact) error {
	if err := validName("artifact id", a.ID); err != nil {
		return err
	}
	if err := validName("variant", a.Variant); err != nil {
		return err
	}

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, artifactKey(a.ID), data, r.ttl)
		pipe.Set(ctx, latestKey(a.Variant), a.ID, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store artifact in redis: %w", err)
	}
	return nil
}

// Get returns the artifact with id.
func (r *RedisStore) Get(ctx context.Context, id string) (Artifact, bool, error) {
	if err := validName("artifact id", id); err != nil {
		return Artifact{}, false, err
	}

	data, err := r.client.Get(ctx, artifactKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Artifact{}, false, nil
		}
		return Artifact{}, false, fmt.Errorf("failed to get artifact from redis: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return Artifact{}, false, fmt.Errorf("failed to unmarshal artifact: %w", err)
	}
	return a, true, nil
}

// Latest resolves the variant's latest pointer and returns that artifact.
func (r *RedisStore) Latest(ctx context.Context, variant string) (Artifact, bool, error) {
	if err := validName("variant", variant); err != nil {
		return Artifact{}, false, err
	}

	id, err := r.client.Get(ctx, latestKey(variant)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Artifact{}, false, nil
		}
		return Artifact{}, false, fmt.Errorf("failed to get latest artifact from redis: %w", err)
	}
	return r.Get(ctx, id)
}

// Delete removes the artifact with id. The latest pointer is left to expire
// or be overwritten; Latest reports not found once its target is gone.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := validName("artifact id", id); err != nil {
		return err
	}
	if err := r.client.Del(ctx, artifactKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete artifact from redis: %w", err)
	}
	return nil
}

// Close closes the Redis client connection. Safe to call more than once.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	if err != nil && errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}

// Ping checks the Redis connection health.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
