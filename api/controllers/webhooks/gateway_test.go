package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	internalpayments "github.com/angelmondragon/marketplace-settlement/internal/payments"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
)

type fakeApplier struct {
	inputs []internalpayments.WebhookInput
	err    error
}

func (f *fakeApplier) ApplyWebhookEvent(ctx context.Context, input internalpayments.WebhookInput) (*internalpayments.WebhookResult, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return &internalpayments.WebhookResult{EventID: input.EventID, EventType: "payment.captured"}, nil
}

func TestGatewayWebhookPassesHeaders(t *testing.T) {
	svc := &fakeApplier{}
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/gateway", strings.NewReader(`{"event":"payment.captured"}`))
	req.Header.Set(SignatureHeader, "sig")
	req.Header.Set(EventIDHeader, "evt_1")
	rec := httptest.NewRecorder()
	GatewayWebhook(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(svc.inputs) != 1 {
		t.Fatalf("expected one delivery, got %d", len(svc.inputs))
	}
	in := svc.inputs[0]
	if in.Signature != "sig" || in.EventID != "evt_1" || in.VendorID != nil {
		t.Fatalf("unexpected input %+v", in)
	}
	if string(in.Payload) != `{"event":"payment.captured"}` {
		t.Fatalf("payload must be passed verbatim, got %s", in.Payload)
	}
}

func TestVendorGatewayWebhookScopesVendor(t *testing.T) {
	svc := &fakeApplier{}
	vendorID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	rc := chi.NewRouteContext()
	rc.URLParams.Add("vendorId", vendorID.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	rec := httptest.NewRecorder()
	VendorGatewayWebhook(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.inputs[0].VendorID == nil || *svc.inputs[0].VendorID != vendorID {
		t.Fatalf("expected vendor route id, got %+v", svc.inputs[0].VendorID)
	}
}

func TestGatewayWebhookSignatureMismatch(t *testing.T) {
	svc := &fakeApplier{err: pkgerrors.SignatureMismatch()}
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/gateway", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	GatewayWebhook(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}
