package gateway

import (
	"encoding/json"
	"strings"

	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
)

// Webhook event names the settlement engine reacts to.
const (
	EventPaymentCaptured = "payment.captured"
	EventOrderPaid       = "order.paid"
	EventPaymentFailed   = "payment.failed"
)

// WebhookEvent is the gateway's delivery envelope.
type WebhookEvent struct {
	ID        string         `json:"id"`
	Event     string         `json:"event"`
	CreatedAt int64          `json:"created_at"`
	Payload   WebhookPayload `json:"payload"`
}

type WebhookPayload struct {
	Payment struct {
		Entity PaymentEntity `json:"entity"`
	} `json:"payment"`
	Order struct {
		Entity OrderEntity `json:"entity"`
	} `json:"order"`
}

type PaymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

type OrderEntity struct {
	ID      string `json:"id"`
	Amount  int64  `json:"amount"`
	Receipt string `json:"receipt"`
	Status  string `json:"status"`
}

// ParseWebhookEvent decodes a raw delivery body.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode gateway webhook")
	}
	event.Event = strings.TrimSpace(event.Event)
	if event.Event == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway webhook event type missing")
	}
	return &event, nil
}

// GatewayOrderID returns the order reference from the payment entity, falling
// back to the order entity.
func (e *WebhookEvent) GatewayOrderID() string {
	if e == nil {
		return ""
	}
	if ref := strings.TrimSpace(e.Payload.Payment.Entity.OrderID); ref != "" {
		return ref
	}
	return strings.TrimSpace(e.Payload.Order.Entity.ID)
}

// PaymentID returns the gateway payment reference, if any.
func (e *WebhookEvent) PaymentID() string {
	if e == nil {
		return ""
	}
	return strings.TrimSpace(e.Payload.Payment.Entity.ID)
}

// FailureReason joins the gateway error code and description.
func (e *WebhookEvent) FailureReason() string {
	if e == nil {
		return ""
	}
	entity := e.Payload.Payment.Entity
	parts := make([]string, 0, 2)
	if code := strings.TrimSpace(entity.ErrorCode); code != "" {
		parts = append(parts, code)
	}
	if desc := strings.TrimSpace(entity.ErrorDescription); desc != "" {
		parts = append(parts, desc)
	}
	return strings.Join(parts, ": ")
}
