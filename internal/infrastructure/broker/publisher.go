package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/infrastructure/observability"
	pkgerrors "github.com/DanteArenas/iic2173-backend-grupo-9/pkg/errors"
	"github.com/DanteArenas/iic2173-backend-grupo-9/pkg/retry"
)

// Publisher is the outbound half of the gateway. Publish is best-effort from
// the caller's perspective: it retries a bounded number of times and reports
// the final failure as an upstream error. It is always called strictly after
// the local DB commit, never inside a transaction.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload any) error
	Close() error
}

type KafkaPublisher struct {
	writer    *kafka.Writer
	retryOpts retry.Options
}

func NewPublisher(brokers []string, retryOpts retry.Options) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaPublisher{writer: writer, retryOpts: retryOpts}
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal payload for %s: %v", pkgerrors.ErrInternal, topic, err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}

	opts := p.retryOpts
	opts.OnAttempt = func(a retry.Attempt) {
		slog.Warn("retrying broker publish",
			"topic", topic,
			"key", key,
			"attempt", a.Number,
			"next_delay", a.Delay,
			"error", a.Err)
	}

	err = retry.Do(ctx, func(ctx context.Context, attempt int) error {
		return p.writer.WriteMessages(ctx, msg)
	}, opts)
	if err != nil {
		observability.BrokerMessages.WithLabelValues(topic, "out", "error").Inc()
		slog.Error("broker publish failed after retries", "topic", topic, "key", key, "error", err)
		return fmt.Errorf("%w: publish to %s: %v", pkgerrors.ErrUpstream, topic, err)
	}

	observability.BrokerMessages.WithLabelValues(topic, "out", "success").Inc()
	slog.Info("broker message published", "topic", topic, "key", key)
	return nil
}

func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		slog.Error("failed to close broker writer", "error", err)
		return err
	}
	return nil
}
