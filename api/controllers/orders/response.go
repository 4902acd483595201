package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
)

// OrderResponse is the public order shape. Gateway signatures and settlement
// key ids stay server side.
type OrderResponse struct {
	ID                 uuid.UUID      `json:"id"`
	BuyerID            uuid.UUID      `json:"buyerId"`
	Status             string         `json:"status"`
	PaymentStatus      string         `json:"paymentStatus"`
	PaymentMethod      string         `json:"paymentMethod"`
	TotalCents         int64          `json:"totalCents"`
	ShippingAddress    string         `json:"shippingAddress"`
	PhoneNumber        string         `json:"phoneNumber"`
	Notes              *string        `json:"notes,omitempty"`
	PaymentID          *string        `json:"paymentId,omitempty"`
	GatewayOrderID     *string        `json:"gatewayOrderId,omitempty"`
	SettlementVendorID *uuid.UUID     `json:"settlementVendorId,omitempty"`
	AdminSettled       bool           `json:"adminSettled"`
	CheckedOutAt       *time.Time     `json:"checkedOutAt,omitempty"`
	PaidAt             *time.Time     `json:"paidAt,omitempty"`
	CancelledAt        *time.Time     `json:"cancelledAt,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	Units              []UnitResponse `json:"units"`
}

type UnitResponse struct {
	ID              uuid.UUID `json:"id"`
	VendorID        uuid.UUID `json:"vendorId"`
	ItemID          uuid.UUID `json:"itemId"`
	Quantity        int       `json:"quantity"`
	UnitPriceCents  int64     `json:"unitPriceCents"`
	TotalPriceCents int64     `json:"totalPriceCents"`
	Status          string    `json:"status"`
	CommissionCents int64     `json:"commissionCents"`
	PayoutCents     int64     `json:"payoutCents"`
	StockShortfall  bool      `json:"stockShortfall"`
}

// NewOrderResponse maps the aggregate into its public shape.
func NewOrderResponse(order *models.Order) *OrderResponse {
	if order == nil {
		return nil
	}
	resp := &OrderResponse{
		ID:                 order.ID,
		BuyerID:            order.BuyerID,
		Status:             order.Status.String(),
		PaymentStatus:      order.PaymentStatus.String(),
		PaymentMethod:      order.PaymentMethod.String(),
		TotalCents:         order.TotalCents,
		ShippingAddress:    order.ShippingAddress,
		PhoneNumber:        order.PhoneNumber,
		Notes:              order.Notes,
		PaymentID:          order.PaymentID,
		GatewayOrderID:     order.GatewayOrderID,
		SettlementVendorID: order.SettlementVendorID,
		AdminSettled:       order.AdminSettled,
		CheckedOutAt:       order.CheckedOutAt,
		PaidAt:             order.PaidAt,
		CancelledAt:        order.CancelledAt,
		CreatedAt:          order.CreatedAt,
		Units:              make([]UnitResponse, 0, len(order.Units)),
	}
	for _, unit := range order.Units {
		resp.Units = append(resp.Units, UnitResponse{
			ID:              unit.ID,
			VendorID:        unit.VendorID,
			ItemID:          unit.ItemID,
			Quantity:        unit.Quantity,
			UnitPriceCents:  unit.UnitPriceCents,
			TotalPriceCents: unit.TotalPriceCents,
			Status:          unit.Status.String(),
			CommissionCents: unit.CommissionCents,
			PayoutCents:     unit.PayoutCents,
			StockShortfall:  unit.StockShortfall,
		})
	}
	return resp
}
