// Package kafka implements the training event publisher on Kafka.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/openrmt/openrmt/internal/infrastructure/message"
	"github.com/openrmt/openrmt/internal/observability/logging"
	"github.com/openrmt/openrmt/pkg/errors"
)

// Config holds the Kafka producer settings.
type Config struct {
	Brokers []string
	Topic   string
}

// Publisher sends training events to a Kafka topic with a synchronous
// producer; training throughput is bounded by batches, not events, so the
// simpler delivery guarantee is worth the round trip.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   logging.Logger
}

// NewPublisher creates a connected publisher.
func NewPublisher(cfg Config, logger logging.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.ValidationError("kafka publisher requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, errors.ValidationError("kafka publisher requires a topic")
	}

	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Successes = true
	sc.Producer.Timeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeMessageFailed, "failed to create kafka producer")
	}

	return &Publisher{producer: producer, topic: cfg.Topic, logger: logger}, nil
}

// Publish delivers one event, keyed by run ID so a run's events stay
// ordered within a partition.
func (p *Publisher) Publish(ctx context.Context, event *message.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	buf, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, errors.CodeMessageFailed, "failed to encode event")
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.RunID),
		Value: sarama.ByteEncoder(buf),
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return errors.Wrap(err, errors.CodeMessageFailed, "failed to publish event")
	}

	p.logger.Debug("event published",
		logging.String("type", string(event.Type)),
		logging.String("run_id", event.RunID),
		logging.Int("partition", int(partition)),
		logging.Int64("offset", offset),
	)
	return nil
}

// Close shuts down the producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}
