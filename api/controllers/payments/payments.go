package payments

import (
	"net/http"

	"github.com/google/uuid"

	ordercontrollers "github.com/angelmondragon/marketplace-settlement/api/controllers/orders"
	"github.com/angelmondragon/marketplace-settlement/api/middleware"
	"github.com/angelmondragon/marketplace-settlement/api/responses"
	"github.com/angelmondragon/marketplace-settlement/api/validators"
	internalpayments "github.com/angelmondragon/marketplace-settlement/internal/payments"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

const maxNotesLength = 1000

type verifyPaymentRequest struct {
	GatewayOrderID string `json:"gatewayOrderId" validate:"required,max=128"`
	PaymentID      string `json:"paymentId" validate:"required,max=128"`
	Signature      string `json:"signature" validate:"required,max=256"`
}

type manualSettleRequest struct {
	Notes string `json:"notes" validate:"max=1000"`
}

type gatewayCheckoutResponse struct {
	OrderID            uuid.UUID  `json:"orderId"`
	GatewayOrderID     string     `json:"gatewayOrderId"`
	KeyID              string     `json:"keyId"`
	AmountCents        int64      `json:"amountCents"`
	Currency           string     `json:"currency"`
	SettlementVendorID *uuid.UUID `json:"settlementVendorId,omitempty"`
}

type shortfallResponse struct {
	UnitID   uuid.UUID `json:"unitId"`
	ItemID   uuid.UUID `json:"itemId"`
	VendorID uuid.UUID `json:"vendorId"`
	Quantity int       `json:"quantity"`
}

type settlementResponse struct {
	Order          *ordercontrollers.OrderResponse `json:"order"`
	AlreadySettled bool                            `json:"alreadySettled"`
	Shortfalls     []shortfallResponse             `json:"shortfalls,omitempty"`
}

func newSettlementResponse(settlement *internalpayments.Settlement) settlementResponse {
	resp := settlementResponse{
		Order:          ordercontrollers.NewOrderResponse(settlement.Order),
		AlreadySettled: settlement.AlreadySettled,
	}
	for _, s := range settlement.Shortfalls {
		resp.Shortfalls = append(resp.Shortfalls, shortfallResponse{
			UnitID:   s.UnitID,
			ItemID:   s.ItemID,
			VendorID: s.VendorID,
			Quantity: s.Quantity,
		})
	}
	return resp
}

// StartGateway creates or returns the order's gateway order.
func StartGateway(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor context missing"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		checkout, err := svc.StartGatewayPayment(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, gatewayCheckoutResponse{
			OrderID:            checkout.OrderID,
			GatewayOrderID:     checkout.GatewayOrderID,
			KeyID:              checkout.KeyID,
			AmountCents:        checkout.AmountCents,
			Currency:           checkout.Currency,
			SettlementVendorID: checkout.SettlementVendorID,
		})
	}
}

// Verify checks the client-side payment signature and settles the order.
func Verify(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor context missing"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload verifyPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		settlement, err := svc.VerifyAndApply(r.Context(), internalpayments.VerifyInput{
			OrderID:         orderID,
			GatewayOrderRef: payload.GatewayOrderID,
			PaymentRef:      payload.PaymentID,
			Signature:       payload.Signature,
			Actor:           actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSettlementResponse(settlement))
	}
}

// AdminSettle records an operator-confirmed payment.
func AdminSettle(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor context missing"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload manualSettleRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		settlement, err := svc.ApplyManualSettlement(r.Context(), internalpayments.ManualInput{
			OrderID:    orderID,
			OperatorID: actor.ID,
			Notes:      validators.SanitizeString(payload.Notes, maxNotesLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSettlementResponse(settlement))
	}
}
