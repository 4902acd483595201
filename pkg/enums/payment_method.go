package enums

import "strings"

// PaymentMethod describes how a buyer intends to settle an order.
type PaymentMethod string

const (
	PaymentMethodGateway        PaymentMethod = "gateway"
	PaymentMethodManual         PaymentMethod = "manual"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodGateway,
	PaymentMethodManual,
	PaymentMethodCashOnDelivery,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	return member(p, validPaymentMethods)
}

// RequiresGateway reports whether settlement goes through the payment gateway.
func (p PaymentMethod) RequiresGateway() bool {
	return p == PaymentMethodGateway
}

// ParsePaymentMethod converts raw input into a PaymentMethod. Empty input
// selects the gateway.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	if strings.TrimSpace(value) == "" {
		return PaymentMethodGateway, nil
	}
	return lookup("payment method", value, validPaymentMethods)
}
