package orders

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-settlement/api/middleware"
	"github.com/angelmondragon/marketplace-settlement/api/responses"
	"github.com/angelmondragon/marketplace-settlement/api/validators"
	internalorders "github.com/angelmondragon/marketplace-settlement/internal/orders"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

const (
	maxReasonLength  = 500
	maxAddressLength = 500
	maxPhoneLength   = 32
	maxNotesLength   = 1000
)

// orderCall runs one service operation for an authenticated actor. orderID
// is uuid.Nil on routes without an {orderId} segment.
type orderCall func(r *http.Request, actor internalorders.Actor, orderID uuid.UUID) (*models.Order, error)

// serve resolves the actor and order id, runs call and renders the order.
func serve(svc internalorders.Service, logg *logger.Logger, status int, withOrderID bool, call orderCall) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, ok := middleware.ActorFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor context missing"))
			return
		}
		orderID := uuid.Nil
		if withOrderID {
			id, err := validators.ParseUUIDParam(r, "orderId")
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			orderID = id
		}

		order, err := call(r, actor, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, status, NewOrderResponse(order))
	}
}

// Build turns the buyer's cart into their single open order.
func Build(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return serve(svc, logg, http.StatusCreated, false, func(r *http.Request, actor internalorders.Actor, _ uuid.UUID) (*models.Order, error) {
		var payload buildOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.BuildFromCart(r.Context(), internalorders.BuildInput{
			BuyerID:         actor.ID,
			ShippingAddress: validators.SanitizeString(payload.ShippingAddress, maxAddressLength),
			PhoneNumber:     validators.SanitizeString(payload.PhoneNumber, maxPhoneLength),
			Notes:           validators.SanitizeOptional(payload.Notes, maxNotesLength),
			PaymentMethod:   payload.PaymentMethod,
		})
	})
}

// Detail returns the order to any actor with a stake in it.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return serve(svc, logg, http.StatusOK, true, func(r *http.Request, actor internalorders.Actor, orderID uuid.UUID) (*models.Order, error) {
		return svc.Get(r.Context(), orderID, actor)
	})
}

// Checkout moves a draft order to pending_payment.
func Checkout(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return serve(svc, logg, http.StatusOK, true, func(r *http.Request, actor internalorders.Actor, orderID uuid.UUID) (*models.Order, error) {
		return svc.Checkout(r.Context(), orderID, actor)
	})
}

// Cancel accepts an empty body; the reason is optional.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return serve(svc, logg, http.StatusOK, true, func(r *http.Request, actor internalorders.Actor, orderID uuid.UUID) (*models.Order, error) {
		var payload cancelOrderRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				return nil, err
			}
		}
		return svc.Cancel(r.Context(), internalorders.CancelInput{
			OrderID: orderID,
			Actor:   actor,
			Reason:  validators.SanitizeString(payload.Reason, maxReasonLength),
		})
	})
}

// Advance moves a paid order through fulfillment for its vendor or an admin.
func Advance(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return serve(svc, logg, http.StatusOK, true, func(r *http.Request, actor internalorders.Actor, orderID uuid.UUID) (*models.Order, error) {
		var payload advanceOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		target, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
		}
		return svc.Advance(r.Context(), internalorders.AdvanceInput{
			OrderID: orderID,
			Actor:   actor,
			Target:  target,
		})
	})
}
