// Package kafka publishes enriched-order events to a side channel for
// downstream consumers. Publishing is optional and best-effort; the ETL
// run never fails because of it.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/sales-report-etl/internal/config"
	"github.com/couchcryptid/sales-report-etl/internal/domain"
)

// Publisher produces enriched-order messages to a Kafka topic.
// It implements pipeline.EventPublisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishEnriched serializes and publishes the orders enriched by the
// current merge in a single WriteMessages call.
func (p *Publisher) PublishEnriched(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(orders))
	for i := range orders {
		msg, err := serializeToMessage(orders[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals an enriched order into a Kafka message,
// keyed by order number so re-runs overwrite rather than duplicate in
// compacted topics.
func serializeToMessage(order domain.Order) (kafkago.Message, error) {
	now := domain.Now()
	order.ProcessedAt = &now

	data, err := json.Marshal(order)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize order %s: %w", order.OrderNumber, err)
	}
	return kafkago.Message{
		Key:   []byte(order.OrderNumber),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "ip_address", Value: []byte(order.IPAddress)},
			{Key: "processed_at", Value: []byte(now.Format(time.RFC3339))},
		},
	}, nil
}
