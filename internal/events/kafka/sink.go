// Package kafka implements an events.Sink backed by a Kafka topic.
package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/events"
)

// Sink publishes outbox events to a single Kafka topic, keyed by aggregate ID
// so events for one order stay ordered within a partition.
type Sink struct {
	producer sarama.SyncProducer
	topic    string
}

var _ events.Sink = (*Sink)(nil)

// NewSink connects an idempotent synchronous producer to the given brokers.
func NewSink(brokers []string, topic string) (*Sink, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create kafka producer")
	}
	return &Sink{producer: producer, topic: topic}, nil
}

// encodeEnvelope builds the wire format for published events. The stored
// payload is embedded as-is; it was validated at append time.
func encodeEnvelope(e events.Event, publishedAt time.Time) []byte {
	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("id")
	enc.Str(e.ID)
	enc.FieldStart("aggregate_type")
	enc.Str(e.AggregateType)
	enc.FieldStart("aggregate_id")
	enc.Str(e.AggregateID)
	enc.FieldStart("event_type")
	enc.Str(string(e.Type))
	enc.FieldStart("payload")
	enc.Raw(e.Payload)
	enc.FieldStart("published_at")
	enc.Str(publishedAt.Format(time.RFC3339Nano))
	enc.ObjEnd()
	return enc.Bytes()
}

// Publish sends one event. Callers retry via the outbox on failure.
func (s *Sink) Publish(_ context.Context, e events.Event) error {
	body := encodeEnvelope(e, time.Now().UTC())

	key := e.AggregateID
	if key == "" {
		key = e.ID
	}
	_, _, err := s.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     s.topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(body),
		Timestamp: e.CreatedAt,
	})
	if err != nil {
		return errors.Wrap(err, "send message")
	}
	return nil
}

// Close shuts the underlying producer down.
func (s *Sink) Close() error {
	return s.producer.Close()
}
