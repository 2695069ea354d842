package menu

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"connect-kitchen/internal/models"

	"github.com/go-redis/redis/v8"
)

const menuItemKeyPrefix = "menu_item:"

// RedisCache keeps menu items as JSON strings with a TTL.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{Client: client, TTL: ttl}
}

// GetMany returns the cached items among ids. Misses are simply absent.
func (c *RedisCache) GetMany(ctx context.Context, ids []string) (map[string]models.MenuItem, error) {
	if c.Client == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}

	found := make(map[string]models.MenuItem, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = menuItemKeyPrefix + id
	}

	values, err := c.Client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get menu items from Redis: %w", err)
	}

	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var item models.MenuItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cached menu item: %w", err)
		}
		found[item.ID] = item
	}
	return found, nil
}

func (c *RedisCache) SetMany(ctx context.Context, items []models.MenuItem) error {
	if c.Client == nil {
		return fmt.Errorf("redis client not initialized")
	}
	if len(items) == 0 {
		return nil
	}

	pipe := c.Client.Pipeline()
	for _, item := range items {
		itemJSON, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal menu item %s: %w", item.ID, err)
		}
		pipe.Set(ctx, menuItemKeyPrefix+item.ID, itemJSON, c.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store menu items in Redis: %w", err)
	}
	return nil
}

// Invalidate drops cached copies of ids.
func (c *RedisCache) Invalidate(ctx context.Context, ids ...string) error {
	if c.Client == nil || len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = menuItemKeyPrefix + id
	}
	return c.Client.Del(ctx, keys...).Err()
}
