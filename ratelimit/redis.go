package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig describes the Redis connection.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	// Prefix namespaces the counter keys.
	Prefix string
}

// RedisStore shares windows between replicas using INCR and PEXPIRE.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address must not be empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisStoreFromClient(client, cfg.Prefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "agentdesk:ratelimit:"
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

// Hit implements Store. The first hit of a window sets its expiry; a key
// left without expiry is repaired on the next hit.
func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration) (Window, error) {
	k := s.key(key)

	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		ttl = p.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return Window{}, fmt.Errorf("redis rate limit hit: %w", err)
	}

	remaining := ttl.Val()
	if incr.Val() == 1 || remaining < 0 {
		if err := s.client.PExpire(ctx, k, window).Err(); err != nil {
			return Window{}, fmt.Errorf("redis rate limit expire: %w", err)
		}
		remaining = window
	}
	return Window{Count: int(incr.Val()), ResetAt: s.now().Add(remaining)}, nil
}

// Close closes the client.
func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) key(k string) string { return s.prefix + k }
