package kafka

import (
	"fmt"

	"connect-kitchen/internal/config"
	"connect-kitchen/internal/logger"
	"connect-kitchen/internal/models"
)

// EventPublisher is what OrderEventPublisher needs from a producer.
type EventPublisher interface {
	Publish(topic, key string, value interface{}) error
}

// OrderEventPublisher turns order changes into integration events. Failures
// are logged and never reach the mutation that caused them.
type OrderEventPublisher struct {
	producer EventPublisher
	topics   config.TopicConfig
	log      *logger.Logger
}

func NewOrderEventPublisher(producer EventPublisher, topics config.TopicConfig, log *logger.Logger) *OrderEventPublisher {
	return &OrderEventPublisher{producer: producer, topics: topics, log: log}
}

func (p *OrderEventPublisher) PublishChange(change models.OrderChange) {
	topic := p.topicFor(change)
	event := models.OrderIntegrationEvent{
		Type:           change.Type,
		OccurredAt:     change.OccurredAt,
		ActorID:        change.Actor.ID,
		ActorRole:      change.Actor.Role,
		PreviousStatus: change.PreviousStatus,
		Order:          change.Order,
	}

	if err := p.producer.Publish(topic, change.Order.ID, event); err != nil {
		p.log.Warn("KAFKA", fmt.Sprintf("Failed to queue %s event for order %s: %v", change.Type, change.Order.ID, err))
	}
}

func (p *OrderEventPublisher) topicFor(change models.OrderChange) string {
	switch {
	case change.Type == models.ChangeCreated:
		return p.topics.OrderCreated
	case change.Type == models.ChangeDeleted:
		return p.topics.OrderDeleted
	case change.EnteredReady():
		return p.topics.OrderReady
	default:
		return p.topics.OrderUpdated
	}
}
