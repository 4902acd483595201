package main

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-settlement/pkg/config"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/metrics"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox/registry"
)

const paymentsTopic = "settlement-payment-events"

// relayHarness wires a Service to in-memory fakes.
type relayHarness struct {
	svc      *Service
	rows     *memoryOutbox
	dlq      *memoryDLQ
	pub      *scriptedPublisher
	resolver *stubResolver
	metrics  *prometheus.Registry
}

type harnessOption func(*config.OutboxConfig)

func withMaxAttempts(n int) harnessOption {
	return func(c *config.OutboxConfig) { c.MaxAttempts = n }
}

func newRelayHarness(t *testing.T, rows []models.OutboxEvent, publishErrs []error, opts ...harnessOption) *relayHarness {
	t.Helper()
	outboxCfg := config.OutboxConfig{BatchSize: 10, PollIntervalMS: 100, MaxAttempts: 5}
	for _, opt := range opts {
		opt(&outboxCfg)
	}
	h := &relayHarness{
		rows:     &memoryOutbox{rows: rows},
		dlq:      &memoryDLQ{},
		pub:      &scriptedPublisher{errs: publishErrs},
		resolver: &stubResolver{topic: paymentsTopic},
		metrics:  prometheus.NewRegistry(),
	}
	svc, err := NewService(ServiceParams{
		Config:           &config.Config{Outbox: outboxCfg},
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               noTxDB{},
		PubSub:           nopPubSub{},
		Repository:       h.rows,
		Registry:         h.resolver,
		DLQRepository:    h.dlq,
		PublisherFactory: func(string) publisher { return h.pub },
		Metrics:          metrics.NewOutboxMetrics(h.metrics),
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *relayHarness) counter(t *testing.T, name string) float64 {
	t.Helper()
	families, err := h.metrics.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func outboxRow(t *testing.T, orderID uuid.UUID, eventType enums.OutboxEventType) models.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}
}

type memoryOutbox struct {
	rows      []models.OutboxEvent
	published []uuid.UUID
	retried   []uuid.UUID
	terminal  []uuid.UUID
}

func (m *memoryOutbox) FetchUnpublishedForPublish(_ *gorm.DB, limit, _ int) ([]models.OutboxEvent, error) {
	return m.rows[:min(limit, len(m.rows))], nil
}

func (m *memoryOutbox) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	m.published = append(m.published, id)
	return nil
}

func (m *memoryOutbox) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	m.retried = append(m.retried, id)
	return nil
}

func (m *memoryOutbox) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	m.terminal = append(m.terminal, id)
	return nil
}

type memoryDLQ struct {
	entries []models.OutboxDLQ
}

func (m *memoryDLQ) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	m.entries = append(m.entries, entry)
	return nil
}

type noTxDB struct{}

func (noTxDB) Ping(context.Context) error { return nil }

func (noTxDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type nopPubSub struct{}

func (nopPubSub) Ping(context.Context) error { return nil }

func (nopPubSub) Publisher(string) *gcppubsub.Publisher { return nil }

// scriptedPublisher fails the n-th publish with errs[n]; publishes past the
// script succeed.
type scriptedPublisher struct {
	errs    []error
	sent    []*gcppubsub.Message
	resumed []string
}

func (p *scriptedPublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	var err error
	if n := len(p.sent); n < len(p.errs) {
		err = p.errs[n]
	}
	p.sent = append(p.sent, msg)
	return staticResult{err: err}
}

func (p *scriptedPublisher) ResumePublish(key string) {
	p.resumed = append(p.resumed, key)
}

type staticResult struct {
	err error
}

func (r staticResult) Get(context.Context) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "server-id", nil
}

// stubResolver resolves every row to topic, or fails with err.
type stubResolver struct {
	topic string
	err   error
	actor *outbox.ActorRef
}

func (s *stubResolver) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			Topic:         s.topic,
		},
		Envelope: outbox.PayloadEnvelope{
			Version:    1,
			EventID:    event.ID.String(),
			OccurredAt: event.CreatedAt,
			Actor:      s.actor,
		},
		Payload: &payloads.OrderPaidEvent{OrderID: event.AggregateID},
	}, nil
}
