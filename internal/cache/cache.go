package cache

import (
	"context"
	"fmt"
	"time"
)

// ResponseKey identifies one cached upstream response.
// Hash is sha256 of host + path, so the key never contains ':' from URLs.
type ResponseKey struct {
	Route     string
	VersionID string
	Hash      string
}

// String converts the structured key into the final string used in Redis/map.
func (k ResponseKey) String() string {
	// resp:<ROUTE>:<VERSION_ID>:<HASH_HEX>
	return fmt.Sprintf("resp:%s:%s:%s", k.Route, k.VersionID, k.Hash)
}

// Cache is the interface used by the handlers.
// Implemented by memory cache (dev), Redis cache (shared) and a no-op.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (NopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NopCache) Delete(context.Context, string) error                     { return nil }
