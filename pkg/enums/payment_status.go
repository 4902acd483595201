package enums

// PaymentStatus tracks the payment obligation of an order. Paid is final;
// failed can still move to paid when a later attempt settles.
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

func (p PaymentStatus) String() string {
	return string(p)
}

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusUnpaid,
	PaymentStatusPaid,
	PaymentStatusFailed,
	PaymentStatusRefunded,
}

func (p PaymentStatus) IsValid() bool {
	return member(p, validPaymentStatuses)
}

func (p PaymentStatus) IsPaid() bool {
	return p == PaymentStatusPaid
}

// AcceptsSettlement reports whether a captured payment may still be applied.
func (p PaymentStatus) AcceptsSettlement() bool {
	return p == PaymentStatusUnpaid || p == PaymentStatusFailed
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return lookup("payment status", value, validPaymentStatuses)
}
