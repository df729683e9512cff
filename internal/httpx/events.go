package httpx

import (
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/dnjuguna/mkulima-market/internal/kafkax"
	"github.com/dnjuguna/mkulima-market/internal/market"
)

type EventPublisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

// PublishOrderEvent wraps a payload in the standard envelope, keyed by order
// id so all events for one order land on the same partition.
func PublishOrderEvent(p EventPublisher, service, traceID, topic, eventType string, orderID int64, payload any) {
	if p == nil {
		return
	}
	ev := market.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      service,
		TraceID:       traceID,
		CorrelationID: string(market.PartitionKey(orderID)),
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(topic, market.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
