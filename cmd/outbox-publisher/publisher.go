package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox/registry"
)

type publisherFactory func(topic string) publisher

// publisher sends messages keyed by aggregate so one order's events arrive
// in the order they were written. A failed key stays paused until resumed.
type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
}

type publishResult interface {
	Get(context.Context) (string, error)
}

func (s *Service) publishResolved(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publishers(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	msg := buildMessage(event, resolved)
	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	if _, err := result.Get(publishCtx); err != nil {
		pub.ResumePublish(msg.OrderingKey)
		return err
	}
	return nil
}

// buildMessage carries the stored envelope as the body. Attributes let
// subscribers filter without decoding it.
func buildMessage(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	key := event.OrderingKey()
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   key,
		"schema_version": strconv.Itoa(resolved.Envelope.Version),
		"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if role := resolved.Envelope.ActorRole(); role != "" {
		attrs["actor_role"] = role
	}
	return &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: key,
		Attributes:  attrs,
	}
}

// cachedPublishers hands out one ordering-enabled publisher per topic.
func cachedPublishers(client pubSubClient) publisherFactory {
	var mu sync.Mutex
	cache := map[string]publisher{}
	return func(topic string) publisher {
		mu.Lock()
		defer mu.Unlock()
		if pub, ok := cache[topic]; ok {
			return pub
		}
		p := client.Publisher(topic)
		if p == nil {
			return nil
		}
		p.EnableMessageOrdering = true
		pub := gcpPublisher{p}
		cache[topic] = pub
		return pub
	}
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if g.p == nil {
		return nil
	}
	return gcpResult{g.p.Publish(ctx, msg)}
}

func (g gcpPublisher) ResumePublish(orderingKey string) {
	if g.p != nil {
		g.p.ResumePublish(orderingKey)
	}
}

type gcpResult struct {
	r *gcppubsub.PublishResult
}

func (g gcpResult) Get(ctx context.Context) (string, error) {
	if g.r == nil {
		return "", errors.New("publish result is nil")
	}
	return g.r.Get(ctx)
}
