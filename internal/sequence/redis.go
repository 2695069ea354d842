package sequence

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const counterKeyPrefix = "order_counter:"

// RedisCounter keeps month counters in Redis. INCR is atomic across every
// client of the server.
type RedisCounter struct {
	Client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{Client: client}
}

func (c *RedisCounter) IncrementCounter(ctx context.Context, bucket string) (int64, error) {
	if c.Client == nil {
		return 0, fmt.Errorf("redis client not initialized")
	}
	seq, err := c.Client.Incr(ctx, counterKeyPrefix+bucket).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", bucket, err)
	}
	return seq, nil
}
