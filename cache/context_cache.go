package cache

import (
	"context"
	"fmt"
	"time"

	models "crypto-signal-engine/database/models_pkg"
)

// Cache keys
const (
	MarketContextCurrentKey  = "market:context:current"
	MarketContextLastGoodKey = "market:context:last_good"
	ActiveWebhooksKey        = "webhooks:active"
)

// Default TTLs
const (
	DefaultMarketContextTTL  = 5 * time.Minute
	MarketContextLastGoodTTL = 24 * time.Hour
	ActiveWebhooksTTL        = time.Hour
)

// ContextCache stores market context snapshots in Redis
type ContextCache struct {
	redis *RedisClient
	ttl   time.Duration
}

// NewContextCache creates a market context cache. A nil client disables caching.
func NewContextCache(redis *RedisClient, ttl time.Duration) *ContextCache {
	if ttl <= 0 {
		ttl = DefaultMarketContextTTL
	}
	return &ContextCache{redis: redis, ttl: ttl}
}

// GetCurrent returns the fresh snapshot, false on miss or when Redis is unavailable
func (c *ContextCache) GetCurrent(ctx context.Context) (*models.MarketContext, bool) {
	return c.get(ctx, MarketContextCurrentKey)
}

// GetLastGood returns the long-lived fallback snapshot
func (c *ContextCache) GetLastGood(ctx context.Context) (*models.MarketContext, bool) {
	return c.get(ctx, MarketContextLastGoodKey)
}

// Store writes both the fresh and the last-good keys
func (c *ContextCache) Store(ctx context.Context, mc *models.MarketContext) error {
	if c == nil || c.redis == nil {
		return fmt.Errorf("redis client not available")
	}
	if err := c.redis.Set(ctx, MarketContextCurrentKey, mc, c.ttl); err != nil {
		return err
	}
	return c.redis.Set(ctx, MarketContextLastGoodKey, mc, MarketContextLastGoodTTL)
}

func (c *ContextCache) get(ctx context.Context, key string) (*models.MarketContext, bool) {
	if c == nil || c.redis == nil {
		return nil, false
	}

	var mc models.MarketContext
	if err := c.redis.Get(ctx, key, &mc); err != nil {
		return nil, false
	}
	return &mc, true
}

// WebhookCache stores the active subscriber list
type WebhookCache struct {
	redis *RedisClient
}

// NewWebhookCache creates a webhook list cache. A nil client disables caching.
func NewWebhookCache(redis *RedisClient) *WebhookCache {
	return &WebhookCache{redis: redis}
}

// Get returns the cached active webhooks
func (c *WebhookCache) Get(ctx context.Context) ([]models.SignalWebhook, bool) {
	if c == nil || c.redis == nil {
		return nil, false
	}

	var hooks []models.SignalWebhook
	if err := c.redis.Get(ctx, ActiveWebhooksKey, &hooks); err != nil {
		return nil, false
	}
	return hooks, true
}

// Set caches the active webhooks
func (c *WebhookCache) Set(ctx context.Context, hooks []models.SignalWebhook) error {
	if c == nil || c.redis == nil {
		return fmt.Errorf("redis client not available")
	}
	return c.redis.Set(ctx, ActiveWebhooksKey, hooks, ActiveWebhooksTTL)
}

// Invalidate drops the cached list after a subscriber change
func (c *WebhookCache) Invalidate(ctx context.Context) error {
	if c == nil || c.redis == nil {
		return nil
	}
	return c.redis.Delete(ctx, ActiveWebhooksKey)
}
