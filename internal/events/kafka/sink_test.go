package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/events"
)

func TestEncodeEnvelope(t *testing.T) {
	e := events.Event{
		ID:            "ev-1",
		AggregateType: "order",
		AggregateID:   "o-1",
		Type:          events.TypeOrderCreated,
		Payload:       []byte(`{"order_id":"o-1","grand_total":"18.00"}`),
		CreatedAt:     time.Now(),
	}
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	var got map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(encodeEnvelope(e, at), &got))

	assert.JSONEq(t, `"ev-1"`, string(got["id"]))
	assert.JSONEq(t, `"order"`, string(got["aggregate_type"]))
	assert.JSONEq(t, `"o-1"`, string(got["aggregate_id"]))
	assert.JSONEq(t, `"order.created"`, string(got["event_type"]))
	assert.JSONEq(t, string(e.Payload), string(got["payload"]))
	assert.JSONEq(t, `"2026-08-01T12:00:00Z"`, string(got["published_at"]))
}

func TestPublishSendsKeyedMessage(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "o-1" {
			return errors.Errorf("key %q, want o-1", key)
		}
		body, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var envelope map[string]json.RawMessage
		return json.Unmarshal(body, &envelope)
	})

	s := &Sink{producer: producer, topic: "storefront.events"}
	err := s.Publish(context.Background(), events.Event{
		ID:          "ev-1",
		AggregateID: "o-1",
		Type:        events.TypeOrderCreated,
		Payload:     []byte(`{"order_id":"o-1"}`),
		CreatedAt:   time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, producer.Close())
}

func TestPublishPropagatesProducerError(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	s := &Sink{producer: producer, topic: "storefront.events"}
	err := s.Publish(context.Background(), events.Event{ID: "ev-1", Payload: []byte(`{}`)})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, producer.Close())
}
