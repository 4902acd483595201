package cart

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-settlement/api/middleware"
	"github.com/angelmondragon/marketplace-settlement/api/responses"
	"github.com/angelmondragon/marketplace-settlement/api/validators"
	cartsvc "github.com/angelmondragon/marketplace-settlement/internal/cart"
	"github.com/angelmondragon/marketplace-settlement/internal/orders"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

type addItemRequest struct {
	ItemID   uuid.UUID `json:"itemId" validate:"required"`
	Quantity int       `json:"quantity" validate:"required,min=1,max=1000"`
}

type cartLineResponse struct {
	ItemID   uuid.UUID `json:"itemId"`
	Quantity int       `json:"quantity"`
}

type cartResponse struct {
	Items []cartLineResponse `json:"items"`
}

// CartFetch lists the buyer's cart lines.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		actor, err := buyerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, r, svc, logg, actor)
	}
}

// CartAddItem sets the quantity of an item in the buyer's cart.
func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		actor, err := buyerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.AddItem(r.Context(), actor.ID, payload.ItemID, payload.Quantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, r, svc, logg, actor)
	}
}

// CartRemoveItem drops one item from the buyer's cart.
func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		actor, err := buyerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.RemoveItem(r.Context(), actor.ID, itemID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, r, svc, logg, actor)
	}
}

// CartClear empties the buyer's cart.
func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		actor, err := buyerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Clear(r.Context(), nil, actor.ID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartResponse{Items: []cartLineResponse{}})
	}
}

func writeCart(w http.ResponseWriter, r *http.Request, svc cartsvc.Service, logg *logger.Logger, actor orders.Actor) {
	lines, err := svc.List(r.Context(), nil, actor.ID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	resp := cartResponse{Items: make([]cartLineResponse, 0, len(lines))}
	for _, line := range lines {
		resp.Items = append(resp.Items, cartLineResponse{ItemID: line.ItemID, Quantity: line.Quantity})
	}
	responses.WriteSuccess(w, resp)
}

func buyerFromContext(r *http.Request) (orders.Actor, error) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return orders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor context missing")
	}
	return actor, nil
}
