package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"connect-kitchen/internal/logger"
	"connect-kitchen/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	reader MessageReader
	log    *logger.Logger
}

// NewConsumer creates a consumer group reader over all of topics.
func NewConsumer(brokers []string, topics []string, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupTopics: topics,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
	})
	return NewConsumerWithReader(reader, log)
}

func NewConsumerWithReader(reader MessageReader, log *logger.Logger) *Consumer {
	return &Consumer{reader: reader, log: log}
}

// Start hands every decodable order event to handler until ctx is done.
func (c *Consumer) Start(ctx context.Context, handler func(topic string, event models.OrderIntegrationEvent)) error {
	c.log.Info("KAFKA", "Order event consumer started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.log.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			return err
		}

		var event models.OrderIntegrationEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.log.Warn("KAFKA", fmt.Sprintf("Skipping undecodable record on %s at offset %d: %v", msg.Topic, msg.Offset, err))
			continue
		}
		handler(msg.Topic, event)
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
