package indexcache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// DefaultKeyPrefix namespaces cache keys.
const DefaultKeyPrefix = "indexsync:index:"

// RedisConfig holds connection parameters for the shared cache.
type RedisConfig struct {
	Addrs     []string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// Redis shares confirmed index names between processes (Lambda instances, replicas).
// Redis failures degrade to cache misses.
type Redis struct {
	client rueidis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedis connects to Redis via rueidis.
func NewRedis(cfg RedisConfig, logger *zap.Logger) (*Redis, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return newRedis(client, cfg, logger), nil
}

// NewRedisForTest wraps an existing client (mock).
func NewRedisForTest(c rueidis.Client, cfg RedisConfig) *Redis {
	return newRedis(c, cfg, zap.NewNop())
}

func newRedis(c rueidis.Client, cfg RedisConfig, logger *zap.Logger) *Redis {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Redis{client: c, prefix: prefix, ttl: cfg.TTL, logger: logger}
}

func (r *Redis) key(index string) string { return r.prefix + index }

// Contains reports whether index was confirmed by any process.
func (r *Redis) Contains(ctx context.Context, index string) bool {
	cmd := r.client.B().Exists().Key(r.key(index)).Build()
	n, err := r.client.Do(ctx, cmd).AsInt64()
	if err != nil {
		r.logger.Warn("Index cache lookup failed", zap.String("index", index), zap.Error(err))
		return false
	}
	return n == 1
}

// Add records index as existing, with the configured TTL when set.
func (r *Redis) Add(ctx context.Context, index string) {
	var cmd rueidis.Completed
	if r.ttl > 0 {
		cmd = r.client.B().Set().Key(r.key(index)).Value("1").Ex(r.ttl).Build()
	} else {
		cmd = r.client.B().Set().Key(r.key(index)).Value("1").Build()
	}
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		r.logger.Warn("Index cache store failed", zap.String("index", index), zap.Error(err))
	}
}

// Remove forgets index for every process.
func (r *Redis) Remove(ctx context.Context, index string) {
	cmd := r.client.B().Del().Key(r.key(index)).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		r.logger.Warn("Index cache delete failed", zap.String("index", index), zap.Error(err))
	}
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	cmd := r.client.B().Ping().Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (r *Redis) Close() {
	r.client.Close()
}
