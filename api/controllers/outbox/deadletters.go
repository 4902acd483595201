package outbox

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-settlement/api/responses"
	"github.com/angelmondragon/marketplace-settlement/api/validators"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

// DeadLetterReader reads rows the outbox publisher gave up on.
type DeadLetterReader interface {
	FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error)
	ListByAggregate(ctx context.Context, aggregateID uuid.UUID) ([]models.OutboxDLQ, error)
}

type deadLetterResponse struct {
	ID            uuid.UUID       `json:"id"`
	EventID       uuid.UUID       `json:"eventId"`
	EventType     string          `json:"eventType"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   uuid.UUID       `json:"aggregateId"`
	Topic         *string         `json:"topic,omitempty"`
	Reason        string          `json:"reason"`
	Error         *string         `json:"error,omitempty"`
	AttemptCount  int             `json:"attemptCount"`
	FailedAt      time.Time       `json:"failedAt"`
	Payload       json.RawMessage `json:"payload"`
}

func newDeadLetterResponse(row models.OutboxDLQ) deadLetterResponse {
	return deadLetterResponse{
		ID:            row.ID,
		EventID:       row.EventID,
		EventType:     string(row.EventType),
		AggregateType: string(row.AggregateType),
		AggregateID:   row.AggregateID,
		Topic:         row.Topic,
		Reason:        string(row.ErrorReason),
		Error:         row.ErrorMessage,
		AttemptCount:  row.AttemptCount,
		FailedAt:      row.FailedAt,
		Payload:       row.Payload,
	}
}

// OrderDeadLetters lists the dead-lettered events of one order.
func OrderDeadLetters(reader DeadLetterReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dead letter store unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := reader.ListByAggregate(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters"))
			return
		}
		out := make([]deadLetterResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, newDeadLetterResponse(row))
		}
		responses.WriteSuccess(w, out)
	}
}

// DeadLetter returns the dead-lettered copy of one outbox event.
func DeadLetter(reader DeadLetterReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dead letter store unavailable"))
			return
		}
		eventID, err := validators.ParseUUIDParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := reader.FindByEventID(r.Context(), eventID)
		switch {
		case err != nil:
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dead letter"))
		case row == nil:
			responses.WriteError(r.Context(), logg, w, pkgerrors.NotFound("dead letter", eventID.String()))
		default:
			responses.WriteSuccess(w, newDeadLetterResponse(*row))
		}
	}
}
