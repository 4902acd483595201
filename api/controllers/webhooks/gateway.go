package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-settlement/api/responses"
	"github.com/angelmondragon/marketplace-settlement/api/validators"
	internalpayments "github.com/angelmondragon/marketplace-settlement/internal/payments"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

const (
	SignatureHeader = "X-Gateway-Signature"
	EventIDHeader   = "X-Gateway-Event-Id"

	maxWebhookBody = 1 << 20
)

type webhookApplier interface {
	ApplyWebhookEvent(ctx context.Context, input internalpayments.WebhookInput) (*internalpayments.WebhookResult, error)
}

type webhookAck struct {
	EventID   string `json:"eventId,omitempty"`
	EventType string `json:"eventType,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Ignored   bool   `json:"ignored,omitempty"`
	Orphaned  bool   `json:"orphaned,omitempty"`
}

// GatewayWebhook accepts deliveries signed with the platform webhook secret.
func GatewayWebhook(svc webhookApplier, logg *logger.Logger) http.HandlerFunc {
	return handleWebhook(svc, logg, false)
}

// VendorGatewayWebhook accepts deliveries for a vendor's own gateway account,
// signed with that vendor's webhook secret.
func VendorGatewayWebhook(svc webhookApplier, logg *logger.Logger) http.HandlerFunc {
	return handleWebhook(svc, logg, true)
}

func handleWebhook(svc webhookApplier, logg *logger.Logger, vendorRoute bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		var vendorID *uuid.UUID
		if vendorRoute {
			id, err := validators.ParseUUIDParam(r, "vendorId")
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			vendorID = &id
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		result, err := svc.ApplyWebhookEvent(ctx, internalpayments.WebhookInput{
			Payload:   payload,
			Signature: strings.TrimSpace(r.Header.Get(SignatureHeader)),
			EventID:   strings.TrimSpace(r.Header.Get(EventIDHeader)),
			VendorID:  vendorID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logCtx := logg.WithFields(ctx, map[string]any{
				"event_id":   result.EventID,
				"event_type": result.EventType,
				"duplicate":  result.Duplicate,
			})
			logg.Info(logCtx, "webhook.processed")
		}
		responses.WriteSuccess(w, webhookAck{
			EventID:   result.EventID,
			EventType: result.EventType,
			Duplicate: result.Duplicate,
			Ignored:   result.Ignored,
			Orphaned:  result.Orphaned,
		})
	}
}
