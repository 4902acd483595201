package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-settlement/internal/cart"
	"github.com/angelmondragon/marketplace-settlement/internal/catalog"
	"github.com/angelmondragon/marketplace-settlement/internal/orders"
	"github.com/angelmondragon/marketplace-settlement/internal/settlement"
	"github.com/angelmondragon/marketplace-settlement/internal/vendors"
	"github.com/angelmondragon/marketplace-settlement/pkg/config"
	"github.com/angelmondragon/marketplace-settlement/pkg/db"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/gateway"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/metrics"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox"
)

const (
	platformKeyID         = "rzp_platform"
	platformSecret        = "platform-secret"
	platformWebhookSecret = "platform-webhook"
)

type fakeGateway struct {
	requests []gateway.CreateOrderRequest
	keys     []gateway.Keys
}

func (f *fakeGateway) CreateOrder(_ context.Context, keys gateway.Keys, req gateway.CreateOrderRequest) (*gateway.Order, error) {
	f.requests = append(f.requests, req)
	f.keys = append(f.keys, keys)
	return &gateway.Order{
		ID:          fmt.Sprintf("order_G%d", len(f.requests)),
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Reference:   req.Reference,
		Status:      "created",
	}, nil
}

type memoryGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (g *memoryGuard) key(vendorID *uuid.UUID, eventID string) string {
	if vendorID == nil {
		return "platform:" + eventID
	}
	return vendorID.String() + ":" + eventID
}

func (g *memoryGuard) CheckAndMark(_ context.Context, vendorID *uuid.UUID, eventID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := g.key(vendorID, eventID)
	if g.seen[k] {
		return true, nil
	}
	g.seen[k] = true
	return false, nil
}

func (g *memoryGuard) Release(_ context.Context, vendorID *uuid.UUID, eventID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, g.key(vendorID, eventID))
	return nil
}

type harness struct {
	svc      Service
	orders   orders.Service
	vendors  vendors.Service
	cart     cart.Service
	catalog  catalog.Repository
	outbox   *outbox.Repository
	gateway  *fakeGateway
	registry *prometheus.Registry
}

func newHarness(t *testing.T, tweaks ...func(*config.GatewayConfig)) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test"})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	platform := config.GatewayConfig{
		KeyID:         platformKeyID,
		KeySecret:     platformSecret,
		WebhookSecret: platformWebhookSecret,
		Currency:      "INR",
	}
	for _, tweak := range tweaks {
		tweak(&platform)
	}

	catRepo := catalog.NewRepository(conn)
	catSvc, err := catalog.NewService(catRepo)
	require.NoError(t, err)
	cartSvc, err := cart.NewService(cart.NewRepository(conn), catSvc)
	require.NoError(t, err)
	vendorSvc, err := vendors.NewService(vendors.ServiceParams{
		Repository:        vendors.NewRepository(conn),
		Logger:            logg,
		DefaultCommission: decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	router, err := settlement.NewRouter(vendorSvc, platform, logg)
	require.NoError(t, err)

	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, logg)
	registry := prometheus.NewRegistry()
	settlementMetrics := metrics.NewSettlementMetrics(registry)

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repository: orders.NewRepository(conn),
		Tx:         db.FromConn(conn),
		Outbox:     emitter,
		Cart:       cartSvc,
		Stock:      catSvc,
		Logger:     logg,
		Metrics:    settlementMetrics,
		Now:        func() time.Time { return now },
	})
	require.NoError(t, err)

	h := &harness{
		orders:   orderSvc,
		vendors:  vendorSvc,
		cart:     cartSvc,
		catalog:  catRepo,
		outbox:   outboxRepo,
		gateway:  &fakeGateway{},
		registry: registry,
	}
	h.svc, err = NewService(ServiceParams{
		Repository:        orders.NewRepository(conn),
		Tx:                db.FromConn(conn),
		Outbox:            emitter,
		Gateway:           h.gateway,
		Router:            router,
		Vendors:           vendorSvc,
		Stock:             catSvc,
		Guard:             &memoryGuard{seen: map[string]bool{}},
		Logger:            logg,
		Metrics:           settlementMetrics,
		Currency:          platform.Currency,
		DefaultCommission: decimal.NewFromInt(10),
		Now:               func() time.Time { return now },
	})
	require.NoError(t, err)
	return h
}

func (h *harness) item(t *testing.T, vendorID uuid.UUID, priceCents int64, stock int) *models.CatalogItem {
	t.Helper()
	item := &models.CatalogItem{VendorID: vendorID, Title: "item", PriceCents: priceCents, Stock: stock}
	require.NoError(t, h.catalog.Create(context.Background(), item))
	return item
}

func (h *harness) stock(t *testing.T, itemID uuid.UUID) int {
	t.Helper()
	row, err := h.catalog.FindByID(context.Background(), itemID)
	require.NoError(t, err)
	return row.Stock
}

func (h *harness) pendingOrder(t *testing.T, buyer uuid.UUID, method string, items ...*models.CatalogItem) *models.Order {
	t.Helper()
	ctx := context.Background()
	for _, item := range items {
		require.NoError(t, h.cart.AddItem(ctx, buyer, item.ID, 1))
	}
	order, err := h.orders.BuildFromCart(ctx, orders.BuildInput{
		BuyerID:         buyer,
		ShippingAddress: "12 Market St",
		PhoneNumber:     "+91 555 0100",
		PaymentMethod:   method,
	})
	require.NoError(t, err)
	order, err = h.orders.Checkout(ctx, order.ID, buyerActor(buyer))
	require.NoError(t, err)
	return order
}

func (h *harness) events(t *testing.T, aggregateID uuid.UUID) []enums.OutboxEventType {
	t.Helper()
	rows, err := h.outbox.ListByAggregate(nil, aggregateID)
	require.NoError(t, err)
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}

func (h *harness) counter(t *testing.T, name, channel string) float64 {
	t.Helper()
	mfs, err := h.registry.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if channel == "" {
				return m.GetCounter().GetValue()
			}
			for _, label := range m.GetLabel() {
				if label.GetName() == "channel" && label.GetValue() == channel {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func buyerActor(id uuid.UUID) orders.Actor { return orders.Actor{ID: id, Role: enums.ActorRoleBuyer} }

func adminActor() orders.Actor { return orders.Actor{ID: uuid.New(), Role: enums.ActorRoleAdmin} }

func webhookPayload(t *testing.T, eventID, eventType, gatewayOrderID, paymentID string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":    eventID,
		"event": eventType,
		"payload": map[string]any{
			"payment": map[string]any{
				"entity": map[string]any{"id": paymentID, "order_id": gatewayOrderID},
			},
		},
	})
	require.NoError(t, err)
	return body
}

func count(events []enums.OutboxEventType, target enums.OutboxEventType) int {
	n := 0
	for _, e := range events {
		if e == target {
			n++
		}
	}
	return n
}

func TestTwoVendorOrderVerifyRedeliverCancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := uuid.New()
	itemA := h.item(t, uuid.New(), 1000, 5)
	itemB := h.item(t, uuid.New(), 1500, 5)

	order := h.pendingOrder(t, buyer, "", itemA, itemB)
	require.Equal(t, int64(2500), order.TotalCents)

	checkout, err := h.svc.StartGatewayPayment(ctx, order.ID, buyerActor(buyer))
	require.NoError(t, err)
	assert.Equal(t, "order_G1", checkout.GatewayOrderID)
	assert.Equal(t, platformKeyID, checkout.KeyID)
	assert.Nil(t, checkout.SettlementVendorID)
	assert.Equal(t, "INR", checkout.Currency)

	again, err := h.svc.StartGatewayPayment(ctx, order.ID, buyerActor(buyer))
	require.NoError(t, err)
	assert.Equal(t, checkout.GatewayOrderID, again.GatewayOrderID)
	require.Len(t, h.gateway.requests, 1, "existing gateway order is reused")
	assert.Equal(t, order.ID.String(), h.gateway.requests[0].Reference)

	settled, err := h.svc.VerifyAndApply(ctx, VerifyInput{
		OrderID:         order.ID,
		GatewayOrderRef: "order_G1",
		PaymentRef:      "pay_1",
		Signature:       gateway.PaymentSignature(platformSecret, "order_G1", "pay_1"),
		Actor:           buyerActor(buyer),
	})
	require.NoError(t, err)
	assert.False(t, settled.AlreadySettled)
	assert.Empty(t, settled.Shortfalls)
	assert.Equal(t, enums.OrderStatusPaid, settled.Order.Status)
	assert.Equal(t, enums.PaymentStatusPaid, settled.Order.PaymentStatus)
	require.Len(t, settled.Order.Units, 2)
	for _, unit := range settled.Order.Units {
		assert.Equal(t, enums.FulfillmentStatusConfirmed, unit.Status)
		require.NotNil(t, unit.GatewayPaymentID)
		assert.Equal(t, "pay_1", *unit.GatewayPaymentID)
	}
	assert.Equal(t, int64(100), settled.Order.Units[0].CommissionCents)
	assert.Equal(t, int64(900), settled.Order.Units[0].PayoutCents)
	assert.Equal(t, int64(150), settled.Order.Units[1].CommissionCents)
	assert.Equal(t, int64(1350), settled.Order.Units[1].PayoutCents)
	assert.Equal(t, 4, h.stock(t, itemA.ID))
	assert.Equal(t, 4, h.stock(t, itemB.ID))

	payload := webhookPayload(t, "evt_1", gateway.EventPaymentCaptured, "order_G1", "pay_1")
	redelivered, err := h.svc.ApplyWebhookEvent(ctx, WebhookInput{
		Payload:   payload,
		Signature: gateway.WebhookSignature(platformWebhookSecret, payload),
	})
	require.NoError(t, err)
	require.NotNil(t, redelivered.Settlement)
	assert.True(t, redelivered.Settlement.AlreadySettled)
	assert.Equal(t, 4, h.stock(t, itemA.ID), "redelivery never takes stock twice")

	duplicate, err := h.svc.ApplyWebhookEvent(ctx, WebhookInput{
		Payload:   payload,
		Signature: gateway.WebhookSignature(platformWebhookSecret, payload),
	})
	require.NoError(t, err)
	assert.True(t, duplicate.Duplicate)

	cancelled, err := h.orders.Cancel(ctx, orders.CancelInput{OrderID: order.ID, Actor: adminActor(), Reason: "buyer request"})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 5, h.stock(t, itemA.ID))
	assert.Equal(t, 5, h.stock(t, itemB.ID))

	events := h.events(t, order.ID)
	assert.Equal(t, 1, count(events, enums.EventOrderPaid))
	assert.Equal(t, 1, count(events, enums.EventOrderCanceled))
	assert.Equal(t, float64(1), h.counter(t, "settlement_payments_applied_total", ChannelGatewayVerify))
	assert.Equal(t, float64(1), h.counter(t, "settlement_payments_duplicate_total", ChannelWebhook))
}

func TestSettlementAppliesOnceAcrossChannels(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := uuid.New()
	item := h.item(t, uuid.New(), 2000, 3)
	order := h.pendingOrder(t, buyer, "", item)

	_, err := h.svc.StartGatewayPayment(ctx, order.ID, buyerActor(buyer))
	require.NoError(t, err)

	operator := uuid.New()
	manual, err := h.svc.ApplyManualSettlement(ctx, ManualInput{OrderID: order.ID, OperatorID: operator, Notes: "bank transfer"})
	require.NoError(t, err)
	assert.False(t, manual.AlreadySettled)
	assert.True(t, manual.Order.AdminSettled)
	require.NotNil(t, manual.Order.AdminSettledBy)
	assert.Equal(t, operator, *manual.Order.AdminSettledBy)
	require.NotNil(t, manual.Order.AdminNotes)
	assert.Equal(t, "bank transfer", *manual.Order.AdminNotes)

	verified, err := h.svc.VerifyAndApply(ctx, VerifyInput{
		OrderID:         order.ID,
		GatewayOrderRef: "order_G1",
		PaymentRef:      "pay_9",
		Signature:       gateway.PaymentSignature(platformSecret, "order_G1", "pay_9"),
		Actor:           buyerActor(buyer),
	})
	require.NoError(t, err)
	assert.True(t, verified.AlreadySettled)

	payload := webhookPayload(t, "evt_9", gateway.EventOrderPaid, "order_G1", "pay_9")
	hooked, err := h.svc.ApplyWebhookEvent(ctx, WebhookInput{
		Payload:   payload,
		Signature: gateway.WebhookSignature(platformWebhookSecret, payload),
	})
	require.NoError(t, err)
	assert.True(t, hooked.Settlement.AlreadySettled)

	again, err := h.svc.ApplyManualSettlement(ctx, ManualInput{OrderID: order.ID, OperatorID: operator})
	require.NoError(t, err)
	assert.True(t, again.AlreadySettled)

	assert.Equal(t, 2, h.stock(t, item.ID), "stock decremented exactly once")
	assert.Equal(t, 1, count(h.events(t, order.ID), enums.EventOrderPaid))
}

func TestConcurrentChannelsSettleOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := uuid.New()
	item := h.item(t, uuid.New(), 2000, 10)
	order := h.pendingOrder(t, buyer, "", item)
	_, err := h.svc.StartGatewayPayment(ctx, order.ID, buyerActor(buyer))
	require.NoError(t, err)

	attempts := []func(i int) (*Settlement, error){
		func(int) (*Settlement, error) {
			return h.svc.ApplyManualSettlement(ctx, ManualInput{OrderID: order.ID, OperatorID: uuid.New()})
		},
		func(i int) (*Settlement, error) {
			paymentRef := fmt.Sprintf("pay_client_%d", i)
			return h.svc.VerifyAndApply(ctx, VerifyInput{
				OrderID:         order.ID,
				GatewayOrderRef: "order_G1",
				PaymentRef:      paymentRef,
				Signature:       gateway.PaymentSignature(platformSecret, "order_G1", paymentRef),
				Actor:           buyerActor(buyer),
			})
		},
		func(i int) (*Settlement, error) {
			payload := webhookPayload(t, fmt.Sprintf("evt_%d", i), gateway.EventPaymentCaptured, "order_G1", fmt.Sprintf("pay_hook_%d", i))
			result, err := h.svc.ApplyWebhookEvent(ctx, WebhookInput{
				Payload:   payload,
				Signature: gateway.WebhookSignature(platformWebhookSecret, payload),
			})
			if err != nil {
				return nil, err
			}
			return result.Settlement, nil
		},
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		wins int
		dups int
		errs []error
	)
	for i := range 9 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			settled, err := attempts[i%len(attempts)](i)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				errs = append(errs, err)
			case settled.AlreadySettled:
				dups++
			default:
				wins++
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, errs)
	assert.Equal(t, 1, wins)
	assert.Equal(t, 8, dups)
	assert.Equal(t, 9, h.stock(t, item.ID), "stock decremented exactly once")
	assert.Equal(t, 1, count(h.events(t, order.ID), enums.EventOrderPaid))
}

func TestVerifyChecksSignatureBeforeOrderRef(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := uuid.New()
	order := h.pendingOrder(t, buyer, "", h.item(t, uuid.New(), 1000, 2))
	_, err := h.svc.StartGatewayPayment(ctx, order.ID, buyerActor(buyer))
	require.NoError(t, err)

	_, err = h.svc.VerifyAndApply(ctx, VerifyInput{
		OrderID:         order.ID,
		GatewayOrderRef: "order_other",
		PaymentRef:      "pay_1",
		Signature:       "deadbeef",
		Actor:           buyerActor(buyer),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSignatureMismatch), "got %v", err)

	_, err = h.svc.VerifyAndApply(ctx, VerifyInput{
		OrderID:         order.ID,
		GatewayOrderRef: "order_other",
		PaymentRef:      "pay_1",
		Signature:       gateway.PaymentSignature(platformSecret, "order_other", "pay_1"),
		Actor:           buyerActor(buyer),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOrderMismatch), "got %v", err)

	_, err = h.svc.VerifyAndApply(ctx, VerifyInput{
		OrderID:         order.ID,
		GatewayOrderRef: "order_G1",
		PaymentRef:      "pay_1",
		Signature:       gateway.PaymentSignature(platformSecret, "order_G1", "pay_1"),
		Actor:           buyerActor(uuid.New()),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorizedActor), "got %v", err)

	current, err := h.orders.Get(ctx, order.ID, adminActor())
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPendingPayment, current.Status)
}

func TestVerifyRequiresAllFields(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.VerifyAndApply(context.Background(), VerifyInput{OrderID: uuid.New(), GatewayOrderRef: "order_G1"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestVendorGatewayCredentialsSettleOrder(t *testing.T) {
	t.Run("enabled vendor keys govern the order", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		vendorA, vendorB := uuid.New(), uuid.New()
		_, err := h.vendors.UpdateConfig(ctx, vendorA, vendors.UpdateInput{
			Method:               enums.SettlementMethodGateway,
			GatewayKeyID:         strPtr("rzp_vendor_a"),
			GatewayKeySecret:     strPtr("vendor-a-secret"),
			GatewayWebhookSecret: strPtr("vendor-a-webhook"),
		})
		require.NoError(t, err)

		buyer := uuid.New()
		order := h.pendingOrder(t, buyer, "", h.item(t, vendorA, 1000, 2), h.item(t, vendorB, 1500, 2))
		checkout, err := h.svc.StartGatewayPayment(ctx, order.ID, buyerActor(buyer))
		require.NoError(t, err)
		assert.Equal(t, "rzp_vendor_a", checkout.KeyID)
		require.NotNil(t, checkout.SettlementVendorID)
		assert.Equal(t, vendorA, *checkout.SettlementVendorID)
		assert.Equal(t, "vendor-a-secret", h.gateway.keys[0].KeySecret)

		_, err = h.svc.VerifyAndApply(ctx, VerifyInput{
			OrderID:         order.ID,
			GatewayOrderRef: checkout.GatewayOrderID,
			PaymentRef:      "pay_1",
			Signature:       gateway.PaymentSignature(platformSecret, checkout.GatewayOrderID, "pay_1"),
			Actor:           buyerActor(buyer),
		})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSignatureMismatch), "platform secret must not verify vendor orders")

		payload := webhookPayload(t, "evt_1", gateway.EventPaymentCaptured, checkout.GatewayOrderID, "pay_1")
		_, err = h.svc.ApplyWebhookEvent(ctx, WebhookInput{
			Payload:   payload,
			Signature: gateway.WebhookSignature(platformWebhookSecret, payload),
		})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOrderMismatch), "platform route cannot settle vendor orders")

		result, err := h.svc.ApplyWebhookEvent(ctx, WebhookInput{
			Payload:   payload,
			Signature: gateway.WebhookSignature("vendor-a-webhook", payload),
			VendorID:  &vendorA,
		})
		require.NoError(t, err)
		require.NotNil(t, result.Settlement)
		assert.False(t, result.Settlement.AlreadySettled)
		assert.Equal(t, enums.OrderStatusPaid, result.Settlement.Order.Status)
		assert.Equal(t, float64(1), h.counter(t, "settlement_payments_applied_total", ChannelWebhook))
	})

	t.Run("disabled vendor falls back to platform keys", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		vendorA := uuid.New()
		disabled := false
		_, err := h.vendors.UpdateConfig(ctx, vendorA, vendors.UpdateInput{
			Method:           enums.SettlementMethodGateway,
			GatewayKeyID:     strPtr("rzp_vendor_a"),
			GatewayKeySecret: strPtr("vendor-a-secret"),
			GatewayEnabled:   &disabled,
		})
		require.NoError(t, err)

		buyer := uuid.New()
		order := h.pendingOrder(t, buyer, "", h.item(t, vendorA, 1000, 2))
		checkout, err := h.svc.StartGatewayPayment(ctx, order.ID, buyerActor(buyer))
		require.NoError(t, err)
		assert.Equal(t, platformKeyID, checkout.KeyID)
		assert.Nil(t, checkout.SettlementVendorID)

		settled, err := h.svc.VerifyAndApply(ctx, VerifyInput{
			OrderID:         order.ID,
			GatewayOrderRef: checkout.GatewayOrderID,
			PaymentRef:      "pay_1",
			Signature:       gateway.PaymentSignature(platformSecret, checkout.GatewayOrderID, "pay_1"),
			Actor:           buyerActor(buyer),
		})
		require.NoError(t, err)
		assert.Equal(t, enums.OrderStatusPaid, settled.Order.Status)
	})
}

func TestVerifyAfterKeyRotationOnPaidOrderIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	vendorA := uuid.New()
	_, err := h.vendors.UpdateConfig(ctx, vendorA, vendors.UpdateInput{
		Method:           enums.SettlementMethodGateway,
		GatewayKeyID:     strPtr("rzp_vendor_a"),
		GatewayKeySecret: strPtr("vendor-a-secret"),
	})
	require.NoError(t, err)

	buyer := uuid.New()
	item := h.item(t, vendorA, 1000, 2)
	order := h.pendingOrder(t, buyer, "", item)
	checkout, err := h.svc.StartGatewayPayment(ctx, order.ID, buyerActor(buyer))
	require.NoError(t, err)

	input := VerifyInput{
		OrderID:         order.ID,
		GatewayOrderRef: checkout.GatewayOrderID,
		PaymentRef:      "pay_1",
		Signature:       gateway.PaymentSignature("vendor-a-secret", checkout.GatewayOrderID, "pay_1"),
		Actor:           buyerActor(buyer),
	}
	first, err := h.svc.VerifyAndApply(ctx, input)
	require.NoError(t, err)
	require.False(t, first.AlreadySettled)

	_, err = h.vendors.UpdateConfig(ctx, vendorA, vendors.UpdateInput{
		Method:           enums.SettlementMethodGateway,
		GatewayKeyID:     strPtr("rzp_vendor_a_rotated"),
		GatewayKeySecret: strPtr("vendor-a-rotated"),
	})
	require.NoError(t, err)

	again, err := h.svc.VerifyAndApply(ctx, input)
	require.NoError(t, err)
	assert.True(t, again.AlreadySettled)
	assert.Equal(t, enums.OrderStatusPaid, again.Order.Status)
	assert.Equal(t, 1, h.stock(t, item.ID))
	assert.Equal(t, float64(1), h.counter(t, "settlement_payments_duplicate_total", ChannelGatewayVerify))
}

func TestStartGatewayPaymentGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := uuid.New()
	manualOrder := h.pendingOrder(t, buyer, "manual", h.item(t, uuid.New(), 1000, 2))
	_, err := h.svc.StartGatewayPayment(ctx, manualOrder.ID, buyerActor(buyer))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

	other := uuid.New()
	require.NoError(t, h.cart.AddItem(ctx, other, h.item(t, uuid.New(), 500, 2).ID, 1))
	draft, err := h.orders.BuildFromCart(ctx, orders.BuildInput{BuyerID: other, ShippingAddress: "1 Road", PhoneNumber: "555"})
	require.NoError(t, err)
	_, err = h.svc.StartGatewayPayment(ctx, draft.ID, buyerActor(other))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidState), "got %v", err)

	_, err = h.svc.ApplyManualSettlement(ctx, ManualInput{OrderID: draft.ID, OperatorID: uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidState), "draft orders cannot be settled")
	assert.Empty(t, h.gateway.requests)
}

func TestStartGatewayPaymentWithoutCredentials(t *testing.T) {
	h := newHarness(t, func(cfg *config.GatewayConfig) {
		cfg.KeyID = ""
		cfg.KeySecret = ""
	})
	ctx := context.Background()
	buyer := uuid.New()
	order := h.pendingOrder(t, buyer, "", h.item(t, uuid.New(), 1000, 2))
	_, err := h.svc.StartGatewayPayment(ctx, order.ID, buyerActor(buyer))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGatewayNotConfigured), "got %v", err)
}

func TestWebhookSignatureAndRelaxedMode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := uuid.New()
	order := h.pendingOrder(t, buyer, "", h.item(t, uuid.New(), 1000, 2))
	_, err := h.svc.StartGatewayPayment(ctx, order.ID, buyerActor(buyer))
	require.NoError(t, err)

	payload := webhookPayload(t, "evt_1", gateway.EventPaymentCaptured, "order_G1", "pay_1")
	_, err = h.svc.ApplyWebhookEvent(ctx, WebhookInput{Payload: payload, Signature: "bogus"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSignatureMismatch))

	relaxed := newHarness(t, func(cfg *config.GatewayConfig) { cfg.WebhookSecret = "" })
	relaxedOrder := relaxed.pendingOrder(t, buyer, "", relaxed.item(t, uuid.New(), 1000, 2))
	_, err = relaxed.svc.StartGatewayPayment(ctx, relaxedOrder.ID, buyerActor(buyer))
	require.NoError(t, err)
	result, err := relaxed.svc.ApplyWebhookEvent(ctx, WebhookInput{Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, result.Settlement.Order.Status)
}

func TestWebhookPaymentFailedThenVerified(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := uuid.New()
	order := h.pendingOrder(t, buyer, "", h.item(t, uuid.New(), 1000, 2))
	_, err := h.svc.StartGatewayPayment(ctx, order.ID, buyerActor(buyer))
	require.NoError(t, err)

	payload := webhookPayload(t, "evt_f", gateway.EventPaymentFailed, "order_G1", "pay_f")
	result, err := h.svc.ApplyWebhookEvent(ctx, WebhookInput{
		Payload:   payload,
		Signature: gateway.WebhookSignature(platformWebhookSecret, payload),
	})
	require.NoError(t, err)
	assert.Nil(t, result.Settlement)

	current, err := h.orders.Get(ctx, order.ID, buyerActor(buyer))
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusFailed, current.PaymentStatus)
	assert.Equal(t, enums.OrderStatusPendingPayment, current.Status)
	assert.Equal(t, 1, count(h.events(t, order.ID), enums.EventPaymentFailed))

	settled, err := h.svc.VerifyAndApply(ctx, VerifyInput{
		OrderID:         order.ID,
		GatewayOrderRef: "order_G1",
		PaymentRef:      "pay_2",
		Signature:       gateway.PaymentSignature(platformSecret, "order_G1", "pay_2"),
		Actor:           buyerActor(buyer),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, settled.Order.PaymentStatus)
}

func TestWebhookOnCancelledOrderIsOrphaned(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := uuid.New()
	item := h.item(t, uuid.New(), 1000, 2)
	order := h.pendingOrder(t, buyer, "", item)
	_, err := h.svc.StartGatewayPayment(ctx, order.ID, buyerActor(buyer))
	require.NoError(t, err)
	_, err = h.orders.Cancel(ctx, orders.CancelInput{OrderID: order.ID, Actor: buyerActor(buyer), Reason: "changed mind"})
	require.NoError(t, err)

	payload := webhookPayload(t, "evt_late", gateway.EventPaymentCaptured, "order_G1", "pay_late")
	result, err := h.svc.ApplyWebhookEvent(ctx, WebhookInput{
		Payload:   payload,
		Signature: gateway.WebhookSignature(platformWebhookSecret, payload),
	})
	require.NoError(t, err)
	assert.True(t, result.Orphaned)
	assert.Equal(t, 1, count(h.events(t, order.ID), enums.EventPaymentOrphaned))
	assert.Equal(t, float64(1), h.counter(t, "settlement_payments_orphaned_total", ""))
	assert.Equal(t, 2, h.stock(t, item.ID))
}

func TestWebhookForReplacedGatewayOrderIsOrphaned(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := uuid.New()
	first := h.item(t, uuid.New(), 1000, 2)
	order := h.pendingOrder(t, buyer, "", first)
	checkout, err := h.svc.StartGatewayPayment(ctx, order.ID, buyerActor(buyer))
	require.NoError(t, err)
	require.Equal(t, "order_G1", checkout.GatewayOrderID)

	// the buyer edits the cart and rebuilds, dropping order_G1
	second := h.item(t, uuid.New(), 700, 2)
	rebuilt := h.pendingOrder(t, buyer, "", second)
	require.Equal(t, order.ID, rebuilt.ID)
	require.Nil(t, rebuilt.GatewayOrderID)

	payload := webhookPayload(t, "evt_stale", gateway.EventPaymentCaptured, "order_G1", "pay_stale")
	result, err := h.svc.ApplyWebhookEvent(ctx, WebhookInput{
		Payload:   payload,
		Signature: gateway.WebhookSignature(platformWebhookSecret, payload),
	})
	require.NoError(t, err)
	assert.True(t, result.Orphaned)
	assert.Nil(t, result.Settlement)
	assert.Equal(t, 1, count(h.events(t, order.ID), enums.EventPaymentOrphaned))
	assert.Equal(t, float64(1), h.counter(t, "settlement_payments_orphaned_total", ""))
	assert.Equal(t, 2, h.stock(t, first.ID))
	assert.Equal(t, 2, h.stock(t, second.ID))

	// the replacement gateway order still settles
	fresh, err := h.svc.StartGatewayPayment(ctx, order.ID, buyerActor(buyer))
	require.NoError(t, err)
	require.Equal(t, "order_G2", fresh.GatewayOrderID)
	payload = webhookPayload(t, "evt_fresh", gateway.EventPaymentCaptured, "order_G2", "pay_fresh")
	result, err = h.svc.ApplyWebhookEvent(ctx, WebhookInput{
		Payload:   payload,
		Signature: gateway.WebhookSignature(platformWebhookSecret, payload),
	})
	require.NoError(t, err)
	require.NotNil(t, result.Settlement)
	assert.False(t, result.Orphaned)
	assert.Equal(t, enums.PaymentStatusPaid, result.Settlement.Order.PaymentStatus)
	assert.Equal(t, 1, h.stock(t, second.ID))
	assert.Equal(t, 2, h.stock(t, first.ID))
}

func TestWebhookIgnoresUnknownEvents(t *testing.T) {
	h := newHarness(t)
	payload := []byte(`{"id":"evt_x","event":"refund.created","payload":{}}`)
	result, err := h.svc.ApplyWebhookEvent(context.Background(), WebhookInput{
		Payload:   payload,
		Signature: gateway.WebhookSignature(platformWebhookSecret, payload),
	})
	require.NoError(t, err)
	assert.True(t, result.Ignored)
}

func TestWebhookUnknownOrderReleasesDelivery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payload := webhookPayload(t, "evt_retry", gateway.EventPaymentCaptured, "order_missing", "pay_1")
	input := WebhookInput{Payload: payload, Signature: gateway.WebhookSignature(platformWebhookSecret, payload)}

	_, err := h.svc.ApplyWebhookEvent(ctx, input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = h.svc.ApplyWebhookEvent(ctx, input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "retry is processed, not swallowed as duplicate")
}

func TestShortfallFlagsUnitWithoutRollingBackPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := uuid.New()
	scarce := h.item(t, uuid.New(), 1000, 1)
	plenty := h.item(t, uuid.New(), 500, 3)
	order := h.pendingOrder(t, buyer, "", scarce, plenty)

	// another channel sells the last unit before payment lands
	taken, err := h.catalog.Decrement(ctx, scarce.ID, 1)
	require.NoError(t, err)
	require.True(t, taken)

	settled, err := h.svc.ApplyManualSettlement(ctx, ManualInput{OrderID: order.ID, OperatorID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, settled.Order.Status)
	require.Len(t, settled.Shortfalls, 1)
	assert.Equal(t, scarce.ID, settled.Shortfalls[0].ItemID)
	assert.True(t, settled.Order.Units[0].StockShortfall)
	assert.False(t, settled.Order.Units[1].StockShortfall)
	assert.Equal(t, 2, h.stock(t, plenty.ID))
	assert.Equal(t, []enums.OutboxEventType{enums.EventStockShortfall}, h.events(t, settled.Order.Units[0].ID))
	assert.Equal(t, float64(1), h.counter(t, "settlement_stock_shortfall_total", ""))

	_, err = h.orders.Cancel(ctx, orders.CancelInput{OrderID: order.ID, Actor: adminActor()})
	require.NoError(t, err)
	assert.Equal(t, 0, h.stock(t, scarce.ID), "shortfall units are not restored")
	assert.Equal(t, 3, h.stock(t, plenty.ID))
}

func strPtr(v string) *string { return &v }
