// Package kafka publishes ingested readings to the live-feed topic consumed
// by the dashboard's streaming overlay.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/abnzrdev/tynys-ingest/internal/config"
	"github.com/abnzrdev/tynys-ingest/internal/domain"
)

// Publisher produces reading events to a Kafka topic.
// It implements pipeline.Publisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured live-feed topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishReading serializes and publishes one persisted reading.
func (p *Publisher) PublishReading(ctx context.Context, r domain.Reading) error {
	msg, err := serializeReading(r)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeReading marshals a reading into a Kafka message keyed by device
// identifier, so one device's readings stay ordered within a partition.
func serializeReading(r domain.Reading) (kafkago.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize reading: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(r.DeviceID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "aqi_category", Value: []byte(r.AqiCategory)},
			{Key: "received_at", Value: []byte(r.ServerReceivedAt.Format(time.RFC3339))},
		},
	}, nil
}
