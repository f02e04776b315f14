package cache

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"tlab-bridge/internal/metrics"
	"tlab-bridge/pkg/logging/logging"
)

// LoggingCache wraps a Cache with logging + metrics.
type LoggingCache struct {
	inner Cache
}

func NewLoggingCache(inner Cache) Cache {
	return &LoggingCache{inner: inner}
}

func (c *LoggingCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, ok, err := c.inner.Get(ctx, key)

	result := "miss"
	if err != nil {
		result = "error"
	} else if ok {
		result = "hit"
		metrics.CacheHitsTotal.Inc()
	}

	fields := append(keyFields(key),
		zap.String("cache_result", result), // hit | miss | error
		zap.Duration("latency", time.Since(start)),
	)

	logger := logging.L(ctx)
	if err != nil {
		logger.Error("response_cache_get", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("response_cache_get", fields...)
	}

	return value, ok, err
}

func (c *LoggingCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := c.inner.Set(ctx, key, value, ttl)

	fields := append(keyFields(key),
		zap.Int("bytes", len(value)),
		zap.Duration("ttl", ttl),
		zap.Duration("latency", time.Since(start)),
	)

	logger := logging.L(ctx)
	if err != nil {
		logger.Error("response_cache_set", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("response_cache_set", fields...)
	}

	return err
}

func (c *LoggingCache) Delete(ctx context.Context, key string) error {
	err := c.inner.Delete(ctx, key)
	if err != nil {
		logging.L(ctx).Error("response_cache_delete", append(keyFields(key), zap.Error(err))...)
	} else {
		logging.L(ctx).Debug("response_cache_delete", keyFields(key)...)
	}
	return err
}

// keyFields splits a ResponseKey string into log fields.
// Expecting: resp:<ROUTE>:<VERSION_ID>:<HASH>
func keyFields(key string) []zap.Field {
	parts := strings.Split(key, ":")
	if len(parts) != 4 || parts[0] != "resp" {
		return []zap.Field{zap.String("cache_key", key)}
	}
	return []zap.Field{
		zap.String("route", parts[1]),
		zap.String("version_id", parts[2]),
		zap.String("hash", parts[3]),
	}
}
