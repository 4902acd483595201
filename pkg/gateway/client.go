package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	razorpay "github.com/razorpay/razorpay-go"

	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
)

var errKeysRequired = errors.New("gateway key id and key secret are required")

// Keys authenticate a single gateway account, platform or vendor owned.
type Keys struct {
	KeyID     string
	KeySecret string
}

// orderAPI is the slice of the Razorpay order resource the client uses.
type orderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// Client creates gateway orders through the Razorpay SDK.
type Client struct {
	orders func(keys Keys) orderAPI
}

// Option configures optional client behavior.
type Option func(*Client)

func withOrderAPI(fn func(keys Keys) orderAPI) Option {
	return func(c *Client) {
		if fn != nil {
			c.orders = fn
		}
	}
}

// NewClient builds a gateway client. Keys are supplied per call because each
// order may settle into a different account.
func NewClient(opts ...Option) *Client {
	client := &Client{
		orders: func(keys Keys) orderAPI {
			return razorpay.NewClient(keys.KeyID, keys.KeySecret).Order
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// CreateOrderRequest describes the gateway order that a buyer pays against.
type CreateOrderRequest struct {
	AmountCents int64
	Currency    string
	Reference   string
	Notes       map[string]string
}

// Order is the gateway's view of a payable order.
type Order struct {
	ID          string
	AmountCents int64
	Currency    string
	Reference   string
	Status      string
}

// CreateOrder registers a payable order with the gateway.
func (c *Client) CreateOrder(ctx context.Context, keys Keys, req CreateOrderRequest) (*Order, error) {
	if c == nil || c.orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway client not configured")
	}
	if strings.TrimSpace(keys.KeyID) == "" || strings.TrimSpace(keys.KeySecret) == "" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayNotConfigured, errKeysRequired, "create gateway order")
	}
	if req.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway order amount must be positive")
	}
	// the SDK call takes no context
	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create gateway order")
	}

	data := map[string]interface{}{
		"amount":   req.AmountCents,
		"currency": req.Currency,
		"receipt":  req.Reference,
	}
	if len(req.Notes) > 0 {
		data["notes"] = req.Notes
	}

	resp, err := c.orders(keys).Create(data, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "gateway order request failed")
	}

	id := stringValue(resp["id"])
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway order response missing id")
	}
	amount, err := int64Value(resp["amount"])
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode gateway order amount")
	}

	return &Order{
		ID:          id,
		AmountCents: amount,
		Currency:    stringValue(resp["currency"]),
		Reference:   stringValue(resp["receipt"]),
		Status:      stringValue(resp["status"]),
	}, nil
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}

func int64Value(v interface{}) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	default:
		return 0, fmt.Errorf("unexpected amount type %T", v)
	}
}
