package orders

import "github.com/angelmondragon/marketplace-settlement/pkg/enums"

var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusDraft:          {enums.OrderStatusPendingPayment, enums.OrderStatusCancelled},
	enums.OrderStatusPendingPayment: {enums.OrderStatusPaid, enums.OrderStatusCancelled},
	enums.OrderStatusPaid:           {enums.OrderStatusProcessing, enums.OrderStatusCancelled},
	enums.OrderStatusProcessing:     {enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusShipped:        {enums.OrderStatusDelivered},
}

// CanTransition reports whether the order state machine allows from -> to.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// CanCancel reports whether an order in status may still be cancelled.
func CanCancel(status enums.OrderStatus) bool {
	return CanTransition(status, enums.OrderStatusCancelled)
}

// unitStatusFor maps a post-payment order status onto its fulfillment units.
// The second result is false when units keep their current status.
func unitStatusFor(status enums.OrderStatus) (enums.FulfillmentStatus, bool) {
	switch status {
	case enums.OrderStatusShipped:
		return enums.FulfillmentStatusShipped, true
	case enums.OrderStatusDelivered:
		return enums.FulfillmentStatusDelivered, true
	case enums.OrderStatusCancelled:
		return enums.FulfillmentStatusCancelled, true
	default:
		return "", false
	}
}
