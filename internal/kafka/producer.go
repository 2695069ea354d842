package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"connect-kitchen/internal/logger"

	"github.com/segmentio/kafka-go"
)

var (
	ErrQueueFull      = errors.New("kafka publish queue is full")
	ErrProducerClosed = errors.New("kafka producer is closed")
)

const writeTimeout = 10 * time.Second

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes messages from a single background goroutine, so records
// with the same key keep their order. Publish never blocks the caller.
type Producer struct {
	Writer MessageWriter
	log    *logger.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan kafka.Message
	done   chan struct{}
}

func NewProducer(brokers []string, bufferSize int, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return NewProducerWithWriter(writer, bufferSize, log)
}

func NewProducerWithWriter(writer MessageWriter, bufferSize int, log *logger.Logger) *Producer {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	p := &Producer{
		Writer: writer,
		log:    log,
		queue:  make(chan kafka.Message, bufferSize),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish queues value as JSON under key on topic.
func (p *Producer) Publish(topic, key string, value interface{}) error {
	msgBytes, err := json.Marshal(value)
	if err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}

	select {
	case p.queue <- kafka.Message{Topic: topic, Key: []byte(key), Value: msgBytes}:
		return nil
	default:
		p.log.LogKafka("DROPPED", topic, fmt.Sprintf("queue full, dropped record for key %s", key))
		return ErrQueueFull
	}
}

func (p *Producer) run() {
	defer close(p.done)
	for msg := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := p.Writer.WriteMessages(ctx, msg)
		cancel()
		if err != nil {
			p.log.LogKafka("PUBLISH_FAILED", msg.Topic, fmt.Sprintf("key %s: %v", msg.Key, err))
			continue
		}
		p.log.LogKafka("PUBLISHED", msg.Topic, fmt.Sprintf("key %s", msg.Key))
	}
}

// Close flushes queued records and closes the writer.
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.Writer.Close()
}
