package gatewaywebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-settlement/pkg/redis"
)

// DefaultScope namespaces webhook delivery markers in Redis.
const DefaultScope = "gateway_webhook"

const platformRoute = "platform"

// DeliveryGuard remembers processed webhook deliveries per gateway account.
type DeliveryGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewDeliveryGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*DeliveryGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if strings.TrimSpace(scope) == "" {
		scope = DefaultScope
	}
	return &DeliveryGuard{store: store, ttl: ttl, scope: scope}, nil
}

// CheckAndMark reports true when the delivery was already seen on this route.
// A nil vendorID is the platform account.
func (g *DeliveryGuard) CheckAndMark(ctx context.Context, vendorID *uuid.UUID, eventID string) (bool, error) {
	key, err := g.key(vendorID, eventID)
	if err != nil {
		return false, err
	}
	set, err := g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, fmt.Errorf("mark webhook delivery: %w", err)
	}
	return !set, nil
}

// Release forgets a delivery so the gateway's retry is processed again.
func (g *DeliveryGuard) Release(ctx context.Context, vendorID *uuid.UUID, eventID string) error {
	key, err := g.key(vendorID, eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *DeliveryGuard) key(vendorID *uuid.UUID, eventID string) (string, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	route := platformRoute
	if vendorID != nil {
		route = vendorID.String()
	}
	return g.store.IdempotencyKey(g.scope, route+":"+eventID), nil
}
