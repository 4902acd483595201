package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
)

// FulfillmentUnit is the per-vendor line of an order.
type FulfillmentUnit struct {
	ID              uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID               `gorm:"column:order_id;type:uuid;not null"`
	VendorID        uuid.UUID               `gorm:"column:vendor_id;type:uuid;not null"`
	BuyerID         uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null"`
	ItemID          uuid.UUID               `gorm:"column:item_id;type:uuid;not null"`
	Position        int                     `gorm:"column:position;not null"`
	Quantity        int                     `gorm:"column:quantity;not null"`
	UnitPriceCents  int64                   `gorm:"column:unit_price_cents;not null"`
	TotalPriceCents int64                   `gorm:"column:total_price_cents;not null"`
	Status          enums.FulfillmentStatus `gorm:"column:status;type:fulfillment_status;not null"`

	PaymentID        *string `gorm:"column:payment_id"`
	GatewayOrderID   *string `gorm:"column:gateway_order_id"`
	GatewayPaymentID *string `gorm:"column:gateway_payment_id"`

	CommissionCents int64 `gorm:"column:commission_cents;not null;default:0"`
	PayoutCents     int64 `gorm:"column:payout_cents;not null;default:0"`
	// StockShortfall marks units whose stock decrement failed at payment time.
	StockShortfall bool `gorm:"column:stock_shortfall;not null;default:false"`

	Notes     *string   `gorm:"column:notes"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (FulfillmentUnit) TableName() string { return "fulfillment_units" }

// Reprice recomputes the total from quantity and the snapshotted unit price.
func (u *FulfillmentUnit) Reprice() {
	u.TotalPriceCents = int64(u.Quantity) * u.UnitPriceCents
}
