package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/microgive/pkg/config"
	"github.com/amirasaad/microgive/pkg/idempotency"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps idempotency keys in Redis so every replica sees them.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisStore parses cfg.URL, applies pool settings and pings the server.
func NewRedisStore(ctx context.Context, cfg *config.Redis, logger *slog.Logger) (*RedisStore, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opt.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opt.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opt.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opt.WriteTimeout = cfg.WriteTimeout
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStoreWithClient(client, cfg.KeyPrefix, logger), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: client, prefix: prefix, logger: logger.With("store", "redis")}
}

func (r *RedisStore) key(key string) string {
	return r.prefix + "idem:" + key
}

func (r *RedisStore) Claim(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(key), idempotency.InFlight, ttl).Result()
	if err != nil {
		r.logger.Error("Redis claim error", "key", key, "error", err)
		return "", false, err
	}
	if ok {
		return "", true, nil
	}
	val, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; claim again.
		return r.Claim(ctx, key, ttl)
	}
	if err != nil {
		return "", false, err
	}
	r.logger.Debug("Redis idempotency hit", "key", key)
	return val, false, nil
}

func (r *RedisStore) Complete(ctx context.Context, key, paymentID string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key(key), paymentID, ttl).Err(); err != nil {
		r.logger.Error("Redis complete error", "key", key, "error", err)
		return err
	}
	return nil
}

func (r *RedisStore) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

var _ idempotency.Store = (*RedisStore)(nil)
