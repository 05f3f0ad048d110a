package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Cache key patterns:
// - label:{user_id} - owner display label shown in the admin inbox

// CacheConfig contains configuration for caching
type CacheConfig struct {
	LabelTTL time.Duration
}

// DefaultCacheConfig returns sensible defaults
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		LabelTTL: 5 * time.Minute,
	}
}

// LabelCache caches owner display labels in Redis
type LabelCache struct {
	client *goredis.Client
	config CacheConfig
}

func NewLabelCache(client *goredis.Client, config CacheConfig) *LabelCache {
	if config.LabelTTL <= 0 {
		config.LabelTTL = DefaultCacheConfig().LabelTTL
	}
	return &LabelCache{client: client, config: config}
}

func labelKey(userID uuid.UUID) string {
	return fmt.Sprintf("label:%s", userID.String())
}

// GetLabel returns the cached label; ok is false on a cache miss.
func (c *LabelCache) GetLabel(ctx context.Context, userID uuid.UUID) (string, bool, error) {
	val, err := c.client.Get(ctx, labelKey(userID)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *LabelCache) SetLabel(ctx context.Context, userID uuid.UUID, label string) error {
	return c.client.Set(ctx, labelKey(userID), label, c.config.LabelTTL).Err()
}
