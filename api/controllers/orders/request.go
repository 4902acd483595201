package orders

type buildOrderRequest struct {
	ShippingAddress string  `json:"shippingAddress" validate:"required,max=500"`
	PhoneNumber     string  `json:"phoneNumber" validate:"required,min=5,max=32"`
	Notes           *string `json:"notes" validate:"omitempty,max=1000"`
	PaymentMethod   string  `json:"paymentMethod" validate:"required,oneof=gateway manual cash_on_delivery"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type advanceOrderRequest struct {
	Status string `json:"status" validate:"required,oneof=processing shipped delivered"`
}
