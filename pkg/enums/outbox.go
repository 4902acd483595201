package enums

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder           OutboxAggregateType = "order"
	AggregateFulfillmentUnit OutboxAggregateType = "fulfillment_unit"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateFulfillmentUnit,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	return member(a, validAggregateTypes)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return lookup("aggregate type", value, validAggregateTypes)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderCreated       OutboxEventType = "order_created"
	EventOrderCheckedOut    OutboxEventType = "order_checked_out"
	EventOrderPaid          OutboxEventType = "order_paid"
	EventOrderStateChanged  OutboxEventType = "order_state_changed"
	EventOrderCanceled      OutboxEventType = "order_canceled"
	EventOrderExpired       OutboxEventType = "order_expired"
	EventPaymentFailed      OutboxEventType = "payment_failed"
	EventPaymentOrphaned    OutboxEventType = "payment_orphaned"
	EventStockShortfall     OutboxEventType = "stock_shortfall"
	EventStockRestoreFailed OutboxEventType = "stock_restore_failed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderCheckedOut,
	EventOrderPaid,
	EventOrderStateChanged,
	EventOrderCanceled,
	EventOrderExpired,
	EventPaymentFailed,
	EventPaymentOrphaned,
	EventStockShortfall,
	EventStockRestoreFailed,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	return member(e, validOutboxEventTypes)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return lookup("event type", value, validOutboxEventTypes)
}

// OutboxDLQErrorReason explains why a row left the publish loop.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
)
