package payloads

import (
	"time"

	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	"github.com/google/uuid"
)

// UnitSummary is the per-vendor slice of an order carried on events.
type UnitSummary struct {
	UnitID          uuid.UUID `json:"unit_id"`
	VendorID        uuid.UUID `json:"vendor_id"`
	ItemID          uuid.UUID `json:"item_id"`
	Quantity        int       `json:"quantity"`
	TotalPriceCents int64     `json:"total_price_cents"`
}

// OrderCreatedEvent signals a draft built (or rebuilt) from the cart.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	BuyerID       uuid.UUID           `json:"buyer_id"`
	TotalCents    int64               `json:"total_cents"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	VendorIDs     []uuid.UUID         `json:"vendor_ids"`
	Rebuilt       bool                `json:"rebuilt"`
}

// OrderCheckedOutEvent marks the readiness gate before payment.
type OrderCheckedOutEvent struct {
	OrderID      uuid.UUID `json:"order_id"`
	BuyerID      uuid.UUID `json:"buyer_id"`
	TotalCents   int64     `json:"total_cents"`
	CheckedOutAt time.Time `json:"checked_out_at"`
}

// OrderPaidEvent is emitted once per order when settlement is applied.
type OrderPaidEvent struct {
	OrderID          uuid.UUID     `json:"order_id"`
	BuyerID          uuid.UUID     `json:"buyer_id"`
	TotalCents       int64         `json:"total_cents"`
	Channel          string        `json:"channel"`
	PaymentID        *string       `json:"payment_id,omitempty"`
	GatewayOrderID   *string       `json:"gateway_order_id,omitempty"`
	GatewayPaymentID *string       `json:"gateway_payment_id,omitempty"`
	SettlementVendor *uuid.UUID    `json:"settlement_vendor_id,omitempty"`
	PaidAt           time.Time     `json:"paid_at"`
	Units            []UnitSummary `json:"units"`
}

// OrderStateChangedEvent reports fulfillment progress after payment.
type OrderStateChangedEvent struct {
	OrderID uuid.UUID         `json:"order_id"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
}

// OrderCanceledEvent is emitted whenever an order is cancelled.
type OrderCanceledEvent struct {
	OrderID       uuid.UUID         `json:"order_id"`
	BuyerID       uuid.UUID         `json:"buyer_id"`
	PreviousState enums.OrderStatus `json:"previous_status"`
	StockRestored bool              `json:"stock_restored"`
	CanceledAt    time.Time         `json:"canceled_at"`
	Reason        string            `json:"reason,omitempty"`
}

// OrderExpiredEvent reports an abandoned pending_payment order closed by the sweep.
type OrderExpiredEvent struct {
	OrderID      uuid.UUID `json:"order_id"`
	BuyerID      uuid.UUID `json:"buyer_id"`
	CheckedOutAt time.Time `json:"checked_out_at"`
	ExpiredAt    time.Time `json:"expired_at"`
}

// PaymentFailedEvent surfaces a gateway-reported failure.
type PaymentFailedEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	GatewayOrderID   string    `json:"gateway_order_id"`
	GatewayPaymentID string    `json:"gateway_payment_id,omitempty"`
	Reason           string    `json:"reason,omitempty"`
}

// PaymentOrphanedEvent reports money captured for an order that can no longer be
// paid. Superseded marks a capture against a gateway order dropped by a rebuild.
type PaymentOrphanedEvent struct {
	OrderID          uuid.UUID         `json:"order_id"`
	Status           enums.OrderStatus `json:"status"`
	GatewayOrderID   string            `json:"gateway_order_id"`
	GatewayPaymentID string            `json:"gateway_payment_id,omitempty"`
	Superseded       bool              `json:"superseded,omitempty"`
}

// StockShortfallEvent is the operational alert for a failed decrement after payment.
type StockShortfallEvent struct {
	OrderID  uuid.UUID `json:"order_id"`
	UnitID   uuid.UUID `json:"unit_id"`
	ItemID   uuid.UUID `json:"item_id"`
	VendorID uuid.UUID `json:"vendor_id"`
	Quantity int       `json:"quantity"`
	Error    string    `json:"error,omitempty"`
}

// StockRestoreFailedEvent is the operational alert for a failed restore on cancel.
type StockRestoreFailedEvent struct {
	OrderID  uuid.UUID `json:"order_id"`
	UnitID   uuid.UUID `json:"unit_id"`
	ItemID   uuid.UUID `json:"item_id"`
	Quantity int       `json:"quantity"`
	Error    string    `json:"error"`
}
