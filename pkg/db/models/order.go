package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
)

// Order is the buyer-level aggregate that owns one or more fulfillment units.
type Order struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID         uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null"`
	ShippingAddress string              `gorm:"column:shipping_address;not null"`
	PhoneNumber     string              `gorm:"column:phone_number;not null"`
	Notes           *string             `gorm:"column:notes"`
	TotalCents      int64               `gorm:"column:total_cents;not null"`
	Status          enums.OrderStatus   `gorm:"column:status;type:order_status;not null"`
	PaymentStatus   enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null"`
	PaymentMethod   enums.PaymentMethod `gorm:"column:payment_method;type:payment_method;not null"`

	PaymentID        *string `gorm:"column:payment_id"`
	GatewayOrderID   *string `gorm:"column:gateway_order_id"`
	GatewayPaymentID *string `gorm:"column:gateway_payment_id"`
	GatewaySignature *string `gorm:"column:gateway_signature"`

	// Credentials resolved when the gateway order was created; nil vendor means platform keys.
	SettlementVendorID *uuid.UUID `gorm:"column:settlement_vendor_id;type:uuid"`
	SettlementKeyID    *string    `gorm:"column:settlement_key_id"`

	AdminSettled   bool       `gorm:"column:admin_settled;not null;default:false"`
	AdminSettledAt *time.Time `gorm:"column:admin_settled_at"`
	AdminSettledBy *uuid.UUID `gorm:"column:admin_settled_by;type:uuid"`
	AdminNotes     *string    `gorm:"column:admin_notes"`

	CheckedOutAt *time.Time `gorm:"column:checked_out_at"`
	PaidAt       *time.Time `gorm:"column:paid_at"`
	CancelledAt  *time.Time `gorm:"column:cancelled_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`

	Units []FulfillmentUnit `gorm:"foreignKey:OrderID;references:ID"`
}

func (Order) TableName() string { return "orders" }

// VendorIDs returns the distinct vendors in first-seen unit order.
func (o *Order) VendorIDs() []uuid.UUID {
	if o == nil {
		return nil
	}
	seen := make(map[uuid.UUID]struct{}, len(o.Units))
	out := make([]uuid.UUID, 0, len(o.Units))
	for _, unit := range o.Units {
		if _, ok := seen[unit.VendorID]; ok {
			continue
		}
		seen[unit.VendorID] = struct{}{}
		out = append(out, unit.VendorID)
	}
	return out
}

// HasVendor reports whether any unit belongs to the vendor.
func (o *Order) HasVendor(vendorID uuid.UUID) bool {
	if o == nil {
		return false
	}
	for _, unit := range o.Units {
		if unit.VendorID == vendorID {
			return true
		}
	}
	return false
}
