// Command order-events tails the kitchen order topics and logs every
// integration event, for checking what downstream consumers receive.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connect-kitchen/internal/config"
	"connect-kitchen/internal/kafka"
	"connect-kitchen/internal/logger"
	"connect-kitchen/internal/models"

	"github.com/joho/godotenv"
)

func describe(topic string, event models.OrderIntegrationEvent) string {
	msg := fmt.Sprintf("%s %s order %s (%s) now %s", topic, event.Type, event.Order.OrderNumber, event.Order.ID, event.Order.Status)
	if event.PreviousStatus != "" {
		msg += fmt.Sprintf(" (was %s)", event.PreviousStatus)
	}
	if event.ActorID != "" {
		msg += fmt.Sprintf(" by %s %s", event.ActorRole, event.ActorID)
	}
	return msg
}

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	log := logger.NewLogger(cfg.Log.Dir, cfg.Log.Level)
	defer log.Close()

	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	existing, err := kafka.ListTopics(listCtx, cfg.Kafka.Brokers)
	cancel()
	if err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Could not list topics: %v", err))
	} else {
		log.Info("KAFKA", fmt.Sprintf("Cluster topics: %v", existing))
	}

	topics := cfg.Kafka.Topics.All()
	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, topics, cfg.Kafka.GroupID, log)
	defer consumer.Close()

	log.Info("KAFKA", fmt.Sprintf("Tailing %v as group %s", topics, cfg.Kafka.GroupID))
	err = consumer.Start(ctx, func(topic string, event models.OrderIntegrationEvent) {
		log.LogKafka("RECEIVED", topic, describe(topic, event))
	})
	if err != nil {
		log.Error("KAFKA", fmt.Sprintf("Consumer stopped: %v", err))
		return
	}
	log.Info("APP", "Order event tail stopped")
}
