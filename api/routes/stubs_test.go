package routes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-settlement/internal/cart"
	"github.com/angelmondragon/marketplace-settlement/internal/orders"
	"github.com/angelmondragon/marketplace-settlement/internal/payments"
	"github.com/angelmondragon/marketplace-settlement/internal/vendors"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
)

type stubCart struct{}

func (stubCart) AddItem(context.Context, uuid.UUID, uuid.UUID, int) error { return nil }
func (stubCart) RemoveItem(context.Context, uuid.UUID, uuid.UUID) error   { return nil }
func (stubCart) Clear(context.Context, *gorm.DB, uuid.UUID) error         { return nil }
func (stubCart) Consume(context.Context, *gorm.DB, uuid.UUID, []cart.Line) error {
	return nil
}
func (stubCart) List(context.Context, *gorm.DB, uuid.UUID) ([]cart.Line, error) {
	return []cart.Line{{ItemID: uuid.New(), Quantity: 2}}, nil
}

// stubOrders echoes its inputs back as orders and counts checkouts.
type stubOrders struct {
	checkouts int
}

func (s *stubOrders) BuildFromCart(_ context.Context, input orders.BuildInput) (*models.Order, error) {
	return &models.Order{ID: uuid.New(), BuyerID: input.BuyerID, Status: enums.OrderStatusDraft}, nil
}

func (s *stubOrders) Checkout(_ context.Context, orderID uuid.UUID, actor orders.Actor) (*models.Order, error) {
	s.checkouts++
	return &models.Order{ID: orderID, BuyerID: actor.ID, Status: enums.OrderStatusPendingPayment}, nil
}

func (s *stubOrders) Cancel(_ context.Context, input orders.CancelInput) (*models.Order, error) {
	return &models.Order{ID: input.OrderID, Status: enums.OrderStatusCancelled}, nil
}

func (s *stubOrders) Advance(_ context.Context, input orders.AdvanceInput) (*models.Order, error) {
	return &models.Order{ID: input.OrderID, Status: input.Target}, nil
}

func (s *stubOrders) Get(_ context.Context, orderID uuid.UUID, _ orders.Actor) (*models.Order, error) {
	return &models.Order{ID: orderID}, nil
}

func (s *stubOrders) ListExpiredPending(context.Context, time.Time, int) ([]models.Order, error) {
	return nil, nil
}

type stubPayments struct {
	webhooks, verifies int
}

func (s *stubPayments) StartGatewayPayment(_ context.Context, orderID uuid.UUID, _ orders.Actor) (*payments.GatewayCheckout, error) {
	return &payments.GatewayCheckout{OrderID: orderID, GatewayOrderID: "order_gw"}, nil
}

func (s *stubPayments) VerifyAndApply(_ context.Context, input payments.VerifyInput) (*payments.Settlement, error) {
	s.verifies++
	return &payments.Settlement{Order: &models.Order{ID: input.OrderID}}, nil
}

func (s *stubPayments) ApplyWebhookEvent(_ context.Context, input payments.WebhookInput) (*payments.WebhookResult, error) {
	s.webhooks++
	return &payments.WebhookResult{EventID: input.EventID, EventType: "payment.captured"}, nil
}

func (s *stubPayments) ApplyManualSettlement(_ context.Context, input payments.ManualInput) (*payments.Settlement, error) {
	return &payments.Settlement{Order: &models.Order{ID: input.OrderID}}, nil
}

type stubVendors struct{}

func (stubVendors) GetConfig(_ context.Context, vendorID uuid.UUID) (*models.VendorSettlementConfig, error) {
	return &models.VendorSettlementConfig{VendorID: vendorID, Method: enums.SettlementMethodManual}, nil
}

func (stubVendors) UpdateConfig(_ context.Context, vendorID uuid.UUID, _ vendors.UpdateInput) (*models.VendorSettlementConfig, error) {
	return &models.VendorSettlementConfig{VendorID: vendorID, Method: enums.SettlementMethodManual}, nil
}

type stubDeadLetters struct{}

func (stubDeadLetters) FindByEventID(context.Context, uuid.UUID) (*models.OutboxDLQ, error) {
	return nil, nil
}

func (stubDeadLetters) ListByAggregate(context.Context, uuid.UUID) ([]models.OutboxDLQ, error) {
	return nil, nil
}

// memoryRedis keeps keys in a map and counts rate-limit hits per scope
// without windows.
type memoryRedis struct {
	mu   sync.Mutex
	data map[string]string
	hits map[string]int64
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: map[string]string{}, hits: map[string]int64{}}
}

func (m *memoryRedis) Ping(context.Context) error { return nil }

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryRedis) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string { return "idem:" + scope + ":" + id }

func (m *memoryRedis) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits[scope]++
	return m.hits[scope] <= limit, m.hits[scope], nil
}
