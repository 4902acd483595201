package models

import (
	"time"

	"github.com/google/uuid"
)

// SupersededGatewayOrder remembers a gateway order dropped when its open order
// was rebuilt. Captures against it can no longer settle the order.
type SupersededGatewayOrder struct {
	GatewayOrderID     string     `gorm:"column:gateway_order_id;primaryKey"`
	OrderID            uuid.UUID  `gorm:"column:order_id;type:uuid;not null"`
	SettlementVendorID *uuid.UUID `gorm:"column:settlement_vendor_id;type:uuid"`
	SupersededAt       time.Time  `gorm:"column:superseded_at;autoCreateTime"`
}

func (SupersededGatewayOrder) TableName() string { return "superseded_gateway_orders" }
