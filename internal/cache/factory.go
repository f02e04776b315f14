package cache

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Backend string
	TTL     time.Duration
	Prefix  string
}

// New returns the Cache for cfg.Backend. redisClient is only used (and
// required) for the redis backend.
func New(cfg Config, redisClient *redis.Client) (Cache, error) {
	switch cfg.Backend {
	case "", BackendNone:
		return NopCache{}, nil
	case BackendMemory:
		// Expired entries are swept once per TTL.
		cleanupInterval := cfg.TTL
		return NewMemoryCache(cleanupInterval), nil
	case BackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("cache: redis backend needs a redis client")
		}
		return NewRedisCache(redisClient, RedisConfig{Prefix: cfg.Prefix}), nil
	default:
		return nil, fmt.Errorf("cache: unknown backend %q", cfg.Backend)
	}
}
