package registry

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-settlement/pkg/config"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox/payloads"
)

// EventDescriptor says where an event type is published and how its data
// decodes.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is an outbox row whose envelope and data decoded cleanly.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry routes every known event type to its topic.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
	topics  []string
}

type eventSpec struct {
	eventType     enums.OutboxEventType
	aggregateType enums.OutboxAggregateType
	factory       func() any
}

func spec[T any](eventType enums.OutboxEventType, aggregateType enums.OutboxAggregateType) eventSpec {
	return eventSpec{
		eventType:     eventType,
		aggregateType: aggregateType,
		factory:       func() any { return new(T) },
	}
}

// NewEventRegistry routes order lifecycle events to the orders topic, money
// movement to the payments topic and operator alerts to the alerts topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	routes := []struct {
		setting string
		topic   string
		events  []eventSpec
	}{
		{"orders", cfg.OrdersTopic, []eventSpec{
			spec[payloads.OrderCreatedEvent](enums.EventOrderCreated, enums.AggregateOrder),
			spec[payloads.OrderCheckedOutEvent](enums.EventOrderCheckedOut, enums.AggregateOrder),
			spec[payloads.OrderStateChangedEvent](enums.EventOrderStateChanged, enums.AggregateOrder),
			spec[payloads.OrderCanceledEvent](enums.EventOrderCanceled, enums.AggregateOrder),
			spec[payloads.OrderExpiredEvent](enums.EventOrderExpired, enums.AggregateOrder),
		}},
		{"payments", cfg.PaymentsTopic, []eventSpec{
			spec[payloads.OrderPaidEvent](enums.EventOrderPaid, enums.AggregateOrder),
			spec[payloads.PaymentFailedEvent](enums.EventPaymentFailed, enums.AggregateOrder),
		}},
		{"alerts", cfg.AlertsTopic, []eventSpec{
			spec[payloads.PaymentOrphanedEvent](enums.EventPaymentOrphaned, enums.AggregateOrder),
			spec[payloads.StockShortfallEvent](enums.EventStockShortfall, enums.AggregateFulfillmentUnit),
			spec[payloads.StockRestoreFailedEvent](enums.EventStockRestoreFailed, enums.AggregateFulfillmentUnit),
		}},
	}

	reg := &EventRegistry{entries: map[enums.OutboxEventType]EventDescriptor{}}
	for _, route := range routes {
		topic := strings.TrimSpace(route.topic)
		if topic == "" {
			return nil, fmt.Errorf("%s topic is required", route.setting)
		}
		if !slices.Contains(reg.topics, topic) {
			reg.topics = append(reg.topics, topic)
		}
		for _, ev := range route.events {
			if _, dup := reg.entries[ev.eventType]; dup {
				return nil, fmt.Errorf("event type %s routed twice", ev.eventType)
			}
			reg.entries[ev.eventType] = EventDescriptor{
				EventType:      ev.eventType,
				AggregateType:  ev.aggregateType,
				Topic:          topic,
				PayloadFactory: ev.factory,
			}
		}
	}
	return reg, nil
}

// Topics lists the distinct topics in routing order.
func (r *EventRegistry) Topics() []string {
	return slices.Clone(r.topics)
}

// Descriptor looks up the route for eventType.
func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.entries[eventType]
	return desc, ok
}

// Resolve checks the row against its route and decodes the typed data. Every
// failure is non-retryable: the row will not decode on a later attempt either.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, nonRetryablef("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, nonRetryablef("%s: aggregate type %s, want %s", event.EventType, event.AggregateType, desc.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, nonRetryablef("%s: missing aggregate id", event.EventType)
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, nonRetryablef("%s: %w", event.EventType, err)
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, nonRetryablef("decode %s data: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
