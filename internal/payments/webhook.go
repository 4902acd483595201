package payments

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-settlement/internal/orders"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/gateway"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox/payloads"
)

// WebhookInput is one gateway delivery. VendorID selects the vendor route;
// nil is the platform route. EventID falls back to the id in the payload.
type WebhookInput struct {
	Payload   []byte
	Signature string
	EventID   string
	VendorID  *uuid.UUID
}

// WebhookResult tells the transport how the delivery was handled. Every
// non-error result is acknowledged to the gateway.
type WebhookResult struct {
	EventID    string
	EventType  string
	Duplicate  bool
	Ignored    bool
	Orphaned   bool
	Settlement *Settlement
}

func (s *service) ApplyWebhookEvent(ctx context.Context, input WebhookInput) (*WebhookResult, error) {
	secret, err := s.router.WebhookSecretFor(ctx, input.VendorID)
	if err != nil {
		return nil, err
	}
	logCtx := ctx
	if input.VendorID != nil {
		logCtx = s.logg.WithVendorID(ctx, input.VendorID.String())
	}
	if secret == "" {
		s.logg.Warn(logCtx, "webhook.signature_verification_skipped")
	} else if !gateway.VerifyWebhook(secret, input.Payload, input.Signature) {
		s.logg.Warn(logCtx, "webhook.signature_mismatch")
		return nil, pkgerrors.SignatureMismatch()
	}

	event, err := gateway.ParseWebhookEvent(input.Payload)
	if err != nil {
		return nil, err
	}
	eventID := strings.TrimSpace(input.EventID)
	if eventID == "" {
		eventID = strings.TrimSpace(event.ID)
	}
	result := &WebhookResult{EventID: eventID, EventType: event.Event}

	if s.guard != nil && eventID != "" {
		seen, err := s.guard.CheckAndMark(ctx, input.VendorID, eventID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook delivery")
		}
		if seen {
			s.logg.Info(s.logg.WithField(logCtx, "event_id", eventID), "webhook.duplicate_delivery")
			result.Duplicate = true
			return result, nil
		}
	}

	if err := s.handleEvent(ctx, input, event, result); err != nil {
		if s.guard != nil && eventID != "" {
			if releaseErr := s.guard.Release(ctx, input.VendorID, eventID); releaseErr != nil {
				s.logg.Error(s.logg.WithField(logCtx, "event_id", eventID), "release webhook delivery", releaseErr)
			}
		}
		return nil, err
	}
	return result, nil
}

func (s *service) handleEvent(ctx context.Context, input WebhookInput, event *gateway.WebhookEvent, result *WebhookResult) error {
	switch event.Event {
	case gateway.EventPaymentCaptured, gateway.EventOrderPaid:
		return s.handleCaptured(ctx, input, event, result)
	case gateway.EventPaymentFailed:
		return s.handleFailed(ctx, input, event)
	default:
		result.Ignored = true
		s.logg.Info(s.logg.WithField(ctx, "event_type", event.Event), "webhook.ignored")
		return nil
	}
}

func (s *service) handleCaptured(ctx context.Context, input WebhookInput, event *gateway.WebhookEvent, result *WebhookResult) error {
	order, ref, err := s.orderForEvent(ctx, input, event)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		superseded, lookupErr := s.supersededOrder(ctx, input, event.GatewayOrderID())
		if lookupErr != nil {
			return lookupErr
		}
		if superseded == nil {
			return err
		}
		result.Orphaned = true
		return s.recordOrphan(ctx, superseded, event.GatewayOrderID(), event.PaymentID(), true)
	}
	if err != nil {
		return err
	}
	if order.Status == enums.OrderStatusCancelled && !order.PaymentStatus.IsPaid() {
		result.Orphaned = true
		return s.recordOrphan(ctx, order, ref, event.PaymentID(), false)
	}

	fields := map[string]any{}
	if paymentID := event.PaymentID(); paymentID != "" {
		fields["payment_id"] = paymentID
		fields["gateway_payment_id"] = paymentID
	}
	settled, err := s.apply(ctx, applyInput{
		channel:        ChannelWebhook,
		order:          order,
		gatewayOrderID: &ref,
		actor:          orders.SystemActor(),
		fields:         fields,
	})
	if err != nil {
		if !pkgerrors.IsCode(err, pkgerrors.CodeInvalidState) {
			return err
		}
		// the order may have been cancelled between the lookup and the CAS
		current, loadErr := s.load(ctx, s.repo, order.ID)
		if loadErr != nil || current.Status != enums.OrderStatusCancelled {
			return err
		}
		result.Orphaned = true
		return s.recordOrphan(ctx, current, ref, event.PaymentID(), false)
	}
	result.Settlement = settled
	return nil
}

func (s *service) handleFailed(ctx context.Context, input WebhookInput, event *gateway.WebhookEvent) error {
	order, ref, err := s.orderForEvent(ctx, input, event)
	if err != nil {
		return err
	}
	marked := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).MarkPaymentFailed(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
		}
		if !ok {
			return nil
		}
		marked = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         orders.SystemActor().Ref(),
			Data: payloads.PaymentFailedEvent{
				OrderID:          order.ID,
				GatewayOrderID:   ref,
				GatewayPaymentID: event.PaymentID(),
				Reason:           event.FailureReason(),
			},
		})
	})
	if err != nil {
		return err
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"marked":   marked,
	})
	s.logg.Warn(logCtx, "payment.failed")
	return nil
}

// orderForEvent finds the order behind a delivery and checks the delivery
// arrived on the route whose keys settle it.
func (s *service) orderForEvent(ctx context.Context, input WebhookInput, event *gateway.WebhookEvent) (*models.Order, string, error) {
	ref := event.GatewayOrderID()
	if ref == "" {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "gateway webhook missing order reference")
	}
	order, err := s.repo.FindByGatewayOrderID(ctx, ref)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by gateway ref")
	}
	if order == nil {
		return nil, "", pkgerrors.NotFound("order", ref)
	}
	if !sameVendor(order.SettlementVendorID, input.VendorID) {
		s.logg.Warn(s.logg.WithGatewayOrderID(s.logg.WithOrderID(ctx, order.ID.String()), ref), "webhook.route_mismatch")
		return nil, "", pkgerrors.OrderMismatch()
	}
	return order, ref, nil
}

// supersededOrder resolves a gateway order that a rebuild dropped. Nil means
// the ref was never ours.
func (s *service) supersededOrder(ctx context.Context, input WebhookInput, ref string) (*models.Order, error) {
	superseded, err := s.repo.FindSupersededRef(ctx, ref)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load superseded gateway ref")
	}
	if superseded == nil {
		return nil, nil
	}
	if !sameVendor(superseded.SettlementVendorID, input.VendorID) {
		s.logg.Warn(s.logg.WithGatewayOrderID(s.logg.WithOrderID(ctx, superseded.OrderID.String()), ref), "webhook.route_mismatch")
		return nil, pkgerrors.OrderMismatch()
	}
	return s.load(ctx, s.repo, superseded.OrderID)
}

func (s *service) recordOrphan(ctx context.Context, order *models.Order, ref, paymentID string, superseded bool) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentOrphaned,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         orders.SystemActor().Ref(),
			Data: payloads.PaymentOrphanedEvent{
				OrderID:          order.ID,
				Status:           order.Status,
				GatewayOrderID:   ref,
				GatewayPaymentID: paymentID,
				Superseded:       superseded,
			},
		})
	})
	if err != nil {
		return err
	}
	s.metrics.IncOrphaned()
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":           order.ID.String(),
		"status":             order.Status,
		"gateway_order_id":   ref,
		"gateway_payment_id": paymentID,
		"superseded":         superseded,
	})
	s.logg.Error(logCtx, "payment.orphaned", pkgerrors.InvalidState(order.Status.String(), enums.OrderStatusPaid.String()))
	return nil
}

func sameVendor(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
