package orders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox"
)

// Actor is the authenticated principal behind an operation.
type Actor struct {
	ID   uuid.UUID
	Role enums.ActorRole
}

// SystemActor is used by background jobs.
func SystemActor() Actor {
	return Actor{Role: enums.ActorRoleSystem}
}

// Ref converts the actor into the outbox envelope shape.
func (a Actor) Ref() *outbox.ActorRef {
	return &outbox.ActorRef{UserID: a.ID, Role: a.Role.String()}
}

// AuthorizeBuyer allows the owning buyer or a privileged actor.
func AuthorizeBuyer(order *models.Order, actor Actor) error {
	if actor.Role.IsPrivileged() {
		return nil
	}
	if actor.Role == enums.ActorRoleBuyer && actor.ID == order.BuyerID {
		return nil
	}
	return pkgerrors.Unauthorized(actor.ID.String(), order.ID.String())
}

// AuthorizeFulfillment allows a privileged actor or a vendor owning at least one unit.
func AuthorizeFulfillment(order *models.Order, actor Actor) error {
	if actor.Role.IsPrivileged() {
		return nil
	}
	if actor.Role == enums.ActorRoleVendor && order.HasVendor(actor.ID) {
		return nil
	}
	return pkgerrors.Unauthorized(actor.ID.String(), order.ID.String())
}

// AuthorizeView allows anyone with a stake in the order.
func AuthorizeView(order *models.Order, actor Actor) error {
	if err := AuthorizeBuyer(order, actor); err == nil {
		return nil
	}
	return AuthorizeFulfillment(order, actor)
}
