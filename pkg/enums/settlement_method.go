package enums

// SettlementMethod is a vendor's preferred way of receiving funds.
type SettlementMethod string

const (
	SettlementMethodManual  SettlementMethod = "manual"
	SettlementMethodGateway SettlementMethod = "gateway"
)

var validSettlementMethods = []SettlementMethod{
	SettlementMethodManual,
	SettlementMethodGateway,
}

// String implements fmt.Stringer.
func (s SettlementMethod) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SettlementMethod.
func (s SettlementMethod) IsValid() bool {
	return member(s, validSettlementMethods)
}

// ParseSettlementMethod converts raw input into a SettlementMethod.
func ParseSettlementMethod(value string) (SettlementMethod, error) {
	return lookup("settlement method", value, validSettlementMethods)
}
