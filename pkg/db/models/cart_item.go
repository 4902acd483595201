package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is one staged line of a buyer's cart snapshot.
type CartItem struct {
	BuyerID   uuid.UUID `gorm:"column:buyer_id;type:uuid;primaryKey"`
	ItemID    uuid.UUID `gorm:"column:item_id;type:uuid;primaryKey"`
	Quantity  int       `gorm:"column:quantity;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (CartItem) TableName() string { return "cart_items" }
