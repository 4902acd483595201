package errors

import "fmt"

// EmptyCart reports a build attempt against a cart with no lines.
func EmptyCart() *Error {
	return New(CodeEmptyCart, "cart has no items")
}

// InsufficientStock names the item whose available stock does not cover the request.
func InsufficientStock(itemID string, available, requested int) *Error {
	return New(CodeInsufficientStock, fmt.Sprintf("item %s has %d available, %d requested", itemID, available, requested)).
		WithDetails(map[string]any{
			"itemId":    itemID,
			"available": available,
			"requested": requested,
		})
}

// InvalidState reports a transition that is not legal from the current status.
func InvalidState(from, to string) *Error {
	return New(CodeInvalidState, fmt.Sprintf("cannot move order from %s to %s", from, to)).
		WithDetails(map[string]any{
			"from": from,
			"to":   to,
		})
}

// NotCancellable reports a cancel attempt on a shipped, delivered or cancelled order.
func NotCancellable(status string) *Error {
	return New(CodeNotCancellable, fmt.Sprintf("order in status %s cannot be cancelled", status)).
		WithDetails(map[string]any{"status": status})
}

func GatewayNotConfigured() *Error {
	return New(CodeGatewayNotConfigured, "no vendor or platform gateway credentials available")
}

// SignatureMismatch never carries the expected or supplied signature.
func SignatureMismatch() *Error {
	return New(CodeSignatureMismatch, "payment signature verification failed")
}

func OrderMismatch() *Error {
	return New(CodeOrderMismatch, "gateway order reference does not match order")
}

func NotFound(entity, id string) *Error {
	return New(CodeNotFound, fmt.Sprintf("%s %s not found", entity, id)).
		WithDetails(map[string]any{
			"entity": entity,
			"id":     id,
		})
}

func Unauthorized(actorID, orderID string) *Error {
	return New(CodeUnauthorizedActor, fmt.Sprintf("actor %s may not act on order %s", actorID, orderID)).
		WithDetails(map[string]any{
			"actorId": actorID,
			"orderId": orderID,
		})
}
