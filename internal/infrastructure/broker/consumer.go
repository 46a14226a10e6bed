package broker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/infrastructure/observability"
	"github.com/DanteArenas/iic2173-backend-grupo-9/pkg/retry"
)

// Handler processes one raw message. A handler error is logged and counted,
// never fatal to the consume loop: with at-least-once delivery the handlers
// are idempotent, so dropping a poisoned message is safe.
type Handler func(ctx context.Context, value []byte) error

// Consumer maintains the subscription set. Readers do not survive broker
// hiccups, so each topic loop rebuilds its reader (re-subscribing) behind an
// uncapped-attempt, capped-delay backoff.
type Consumer struct {
	brokers  []string
	groupID  string
	handlers map[string]Handler
	mu       sync.Mutex
}

func NewConsumer(brokers []string, groupID string) *Consumer {
	return &Consumer{
		brokers:  brokers,
		groupID:  groupID,
		handlers: make(map[string]Handler),
	}
}

func (c *Consumer) Subscribe(topic string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = h
}

// Run blocks until ctx is cancelled, consuming every subscribed topic.
func (c *Consumer) Run(ctx context.Context) {
	c.mu.Lock()
	topics := make([]string, 0, len(c.handlers))
	for topic := range c.handlers {
		topics = append(topics, topic)
	}
	c.mu.Unlock()

	var wg sync.WaitGroup
	for _, topic := range topics {
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			c.consumeTopic(ctx, topic)
		}(topic)
	}
	wg.Wait()
}

func (c *Consumer) consumeTopic(ctx context.Context, topic string) {
	c.mu.Lock()
	handler := c.handlers[topic]
	c.mu.Unlock()

	opts := retry.Options{
		MaxAttempts: 0, // reconnect forever
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      time.Second,
		OnAttempt: func(a retry.Attempt) {
			slog.Warn("broker connection lost, reconnecting",
				"topic", topic,
				"attempt", a.Number,
				"next_delay", a.Delay,
				"error", a.Err)
		},
	}

	_ = retry.Do(ctx, func(ctx context.Context, attempt int) error {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.brokers,
			Topic:    topic,
			GroupID:  c.groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		})
		defer reader.Close()

		slog.Info("subscribed to broker topic", "topic", topic, "attempt", attempt)

		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}

			observability.BrokerMessages.WithLabelValues(topic, "in", "received").Inc()
			if err := handler(ctx, msg.Value); err != nil {
				observability.BrokerMessages.WithLabelValues(topic, "in", "error").Inc()
				slog.Error("broker message handler failed",
					"topic", topic,
					"key", string(msg.Key),
					"error", err)
				continue
			}
			observability.BrokerMessages.WithLabelValues(topic, "in", "success").Inc()
		}
	}, opts)
}
