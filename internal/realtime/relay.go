package realtime

import (
	"context"
	"fmt"

	"connect-kitchen/internal/logger"

	"github.com/go-redis/redis/v8"
)

// RedisRelay fans broadcasts out to every instance subscribed to Channel.
type RedisRelay struct {
	Client  *redis.Client
	Channel string
	log     *logger.Logger
}

func NewRedisRelay(client *redis.Client, channel string, log *logger.Logger) *RedisRelay {
	return &RedisRelay{Client: client, Channel: channel, log: log}
}

func (r *RedisRelay) Publish(ctx context.Context, payload []byte) error {
	if err := r.Client.Publish(ctx, r.Channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", r.Channel, err)
	}
	return nil
}

// Run subscribes and passes every message to deliver until ctx is done.
func (r *RedisRelay) Run(ctx context.Context, deliver func([]byte)) error {
	sub := r.Client.Subscribe(ctx, r.Channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed before reporting ready.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.Channel, err)
	}
	r.log.Info("REALTIME", fmt.Sprintf("Relay subscribed to Redis channel %s", r.Channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			r.log.Info("REALTIME", "Relay stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("relay channel %s closed", r.Channel)
			}
			deliver([]byte(msg.Payload))
		}
	}
}
