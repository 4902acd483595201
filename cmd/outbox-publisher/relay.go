package main

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox/registry"
)

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLetter
	outcomeHeld
)

// delivery is what happened to one outbox row within a batch.
type delivery struct {
	event    models.OutboxEvent
	resolved *registry.ResolvedEvent
	outcome  outcome
	reason   enums.OutboxDLQErrorReason
	err      error
}

func (d delivery) topic() string {
	if d.resolved == nil {
		return ""
	}
	return d.resolved.Descriptor.Topic
}

type batchStats struct {
	published, retried, deadLettered, held int
}

func (b *batchStats) add(o outcome) {
	switch o {
	case outcomePublished:
		b.published++
	case outcomeRetry:
		b.retried++
	case outcomeDeadLetter:
		b.deadLettered++
	case outcomeHeld:
		b.held++
	}
}

// processBatch claims up to batchSize rows and publishes them in creation
// order. After a retryable failure the rest of that aggregate's rows wait
// for a later batch.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	start := time.Now()
	var stats batchStats
	processed := false

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		processed = len(events) > 0

		held := map[string]struct{}{}
		for _, event := range events {
			d := s.deliver(ctx, event, held)
			if d.outcome == outcomeRetry {
				held[event.OrderingKey()] = struct{}{}
			}
			if err := s.record(ctx, tx, d); err != nil {
				return err
			}
			stats.add(d.outcome)
		}
		return nil
	})

	if processed {
		s.metrics.ObserveBatch(time.Since(start))
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"published":     stats.published,
			"retried":       stats.retried,
			"dead_lettered": stats.deadLettered,
			"held":          stats.held,
			"duration_ms":   time.Since(start).Milliseconds(),
		}), "outbox batch complete")
	}
	return processed, err
}

func (s *Service) deliver(ctx context.Context, event models.OutboxEvent, held map[string]struct{}) delivery {
	d := delivery{event: event}
	if _, ok := held[event.OrderingKey()]; ok {
		d.outcome = outcomeHeld
		return d
	}

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		d.outcome, d.reason, d.err = outcomeDeadLetter, enums.OutboxDLQReasonNonRetryable, err
		return d
	}
	d.resolved = resolved

	err = s.publishResolved(ctx, event, resolved)
	switch {
	case err == nil:
		d.outcome = outcomePublished
	case registry.IsNonRetryable(err):
		d.outcome, d.reason, d.err = outcomeDeadLetter, enums.OutboxDLQReasonNonRetryable, err
	case event.AttemptCount+1 >= s.maxAttempts:
		d.outcome, d.reason = outcomeDeadLetter, enums.OutboxDLQReasonMaxAttempts
		d.err = fmt.Errorf("max publish attempts reached: %w", err)
	default:
		d.outcome, d.err = outcomeRetry, err
	}
	return d
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, d delivery) error {
	logCtx := s.logg.WithFields(ctx, eventFields(d))
	switch d.outcome {
	case outcomeHeld:
		s.metrics.IncHeld()
		s.logg.Info(logCtx, "outbox event held behind failed aggregate")
		return nil
	case outcomePublished:
		if err := s.repo.MarkPublishedTx(tx, d.event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", d.event.ID, err)
		}
		s.metrics.IncPublished(d.topic())
		s.logg.Info(logCtx, "outbox event published")
		return nil
	case outcomeRetry:
		if err := s.repo.MarkFailedTx(tx, d.event.ID, d.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", d.event.ID, err)
		}
		s.metrics.IncRetried(d.topic())
		s.logg.Warn(s.logg.WithField(logCtx, "error", d.err.Error()), "outbox publish failed")
		return nil
	case outcomeDeadLetter:
		return s.deadLetter(ctx, tx, d)
	}
	return fmt.Errorf("unknown outbox outcome %d", d.outcome)
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, d delivery) error {
	logCtx := s.logg.WithFields(ctx, eventFields(d))
	logCtx = s.logg.WithFields(logCtx, map[string]any{"error_reason": d.reason, "error": d.err.Error()})
	s.logg.Warn(logCtx, "outbox event will not be retried")

	entry := models.OutboxDLQ{
		EventID:       d.event.ID,
		EventType:     d.event.EventType,
		AggregateType: d.event.AggregateType,
		AggregateID:   d.event.AggregateID,
		Payload:       d.event.Payload,
		ErrorReason:   d.reason,
		AttemptCount:  d.event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if topic := d.topic(); topic != "" {
		entry.Topic = &topic
	}
	if d.err != nil {
		msg := d.err.Error()
		entry.ErrorMessage = &msg
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", d.event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, d.event.ID, d.err, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", d.event.ID, err)
	}
	s.metrics.IncDeadLettered(string(d.reason))
	return nil
}

func eventFields(d delivery) map[string]any {
	fields := map[string]any{
		"outbox_id":      d.event.ID.String(),
		"event_type":     d.event.EventType,
		"aggregate_type": d.event.AggregateType,
		"aggregate_id":   d.event.AggregateID.String(),
		"attempt_count":  d.event.AttemptCount,
	}
	if d.resolved != nil {
		fields["event_id"] = d.resolved.Envelope.EventID
		fields["topic"] = d.resolved.Descriptor.Topic
	}
	if d.outcome == outcomeRetry || d.outcome == outcomeDeadLetter {
		fields["next_attempt"] = d.event.AttemptCount + 1
	}
	if d.event.LastError != nil {
		fields["last_error"] = *d.event.LastError
	}
	return fields
}
