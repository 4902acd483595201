package gateway

import (
	"testing"

	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
)

func TestParseWebhookEvent(t *testing.T) {
	body := []byte(`{"id":"evt_1","event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_G1","amount":2500}}}}`)
	event, err := ParseWebhookEvent(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.ID != "evt_1" || event.Event != EventPaymentCaptured {
		t.Fatalf("unexpected envelope %+v", event)
	}
	if event.GatewayOrderID() != "order_G1" || event.PaymentID() != "pay_1" {
		t.Fatalf("unexpected refs %q %q", event.GatewayOrderID(), event.PaymentID())
	}
}

func TestParseWebhookEventOrderFallback(t *testing.T) {
	body := []byte(`{"event":"order.paid","payload":{"order":{"entity":{"id":"order_G2"}}}}`)
	event, err := ParseWebhookEvent(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.GatewayOrderID() != "order_G2" {
		t.Fatalf("expected order entity fallback, got %q", event.GatewayOrderID())
	}
}

func TestParseWebhookEventRejectsGarbage(t *testing.T) {
	if _, err := ParseWebhookEvent([]byte(`not json`)); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := ParseWebhookEvent([]byte(`{"id":"x"}`)); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing event, got %v", err)
	}
}

func TestFailureReason(t *testing.T) {
	event, err := ParseWebhookEvent([]byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"error_code":"BAD_REQUEST_ERROR","error_description":"card declined"}}}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := event.FailureReason(); got != "BAD_REQUEST_ERROR: card declined" {
		t.Fatalf("unexpected reason %q", got)
	}
}
