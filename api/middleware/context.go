package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-settlement/internal/orders"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
)

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "actor_role"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// ActorFromContext rebuilds the authenticated actor seeded by Auth.
func ActorFromContext(ctx context.Context) (orders.Actor, bool) {
	id, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil {
		return orders.Actor{}, false
	}
	role, err := enums.ParseActorRole(RoleFromContext(ctx))
	if err != nil || !role.IsValid() {
		return orders.Actor{}, false
	}
	return orders.Actor{ID: id, Role: role}, true
}

// WithActor injects an authenticated actor into the context.
func WithActor(ctx context.Context, actor orders.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, actor.ID.String())
	return context.WithValue(ctx, ctxRole, actor.Role.String())
}
