package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-settlement/internal/orders"
	"github.com/angelmondragon/marketplace-settlement/internal/settlement"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/gateway"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/metrics"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox/payloads"
)

// Settlement channels, also used as metric labels.
const (
	ChannelGatewayVerify = "gateway_verify"
	ChannelWebhook       = "webhook"
	ChannelManual        = "manual"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type gatewayClient interface {
	CreateOrder(ctx context.Context, keys gateway.Keys, req gateway.CreateOrderRequest) (*gateway.Order, error)
}

type credentialRouter interface {
	ResolveCredentials(ctx context.Context, order *models.Order) (*settlement.Credentials, error)
	CredentialsForOrder(ctx context.Context, order *models.Order) (*settlement.Credentials, error)
	WebhookSecretFor(ctx context.Context, vendorID *uuid.UUID) (string, error)
}

type vendorDirectory interface {
	GetConfig(ctx context.Context, vendorID uuid.UUID) (*models.VendorSettlementConfig, error)
}

type stockLedger interface {
	DecrementStock(ctx context.Context, tx *gorm.DB, id uuid.UUID, qty int) (bool, error)
}

type deliveryGuard interface {
	CheckAndMark(ctx context.Context, vendorID *uuid.UUID, eventID string) (bool, error)
	Release(ctx context.Context, vendorID *uuid.UUID, eventID string) error
}

// Service applies payments to orders exactly once regardless of channel.
type Service interface {
	StartGatewayPayment(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*GatewayCheckout, error)
	VerifyAndApply(ctx context.Context, input VerifyInput) (*Settlement, error)
	ApplyWebhookEvent(ctx context.Context, input WebhookInput) (*WebhookResult, error)
	ApplyManualSettlement(ctx context.Context, input ManualInput) (*Settlement, error)
}

// GatewayCheckout is what the buyer's client needs to open the gateway widget.
// It carries the public key id only.
type GatewayCheckout struct {
	OrderID            uuid.UUID
	GatewayOrderID     string
	KeyID              string
	AmountCents        int64
	Currency           string
	SettlementVendorID *uuid.UUID
}

// VerifyInput is the client-side payment confirmation.
type VerifyInput struct {
	OrderID         uuid.UUID
	GatewayOrderRef string
	PaymentRef      string
	Signature       string
	Actor           orders.Actor
}

// ManualInput records an operator-confirmed payment.
type ManualInput struct {
	OrderID    uuid.UUID
	OperatorID uuid.UUID
	Notes      string
}

// Shortfall is a unit whose stock could not be taken after payment.
type Shortfall struct {
	UnitID   uuid.UUID
	ItemID   uuid.UUID
	VendorID uuid.UUID
	Quantity int
	Reason   string
}

// Settlement is the outcome of a payment application.
type Settlement struct {
	Order          *models.Order
	AlreadySettled bool
	Shortfalls     []Shortfall
}

type ServiceParams struct {
	Repository        orders.Repository
	Tx                txRunner
	Outbox            outboxPublisher
	Gateway           gatewayClient
	Router            credentialRouter
	Vendors           vendorDirectory
	Stock             stockLedger
	Guard             deliveryGuard
	Logger            *logger.Logger
	Metrics           *metrics.SettlementMetrics
	Currency          string
	DefaultCommission decimal.Decimal
	Now               func() time.Time
}

type service struct {
	repo              orders.Repository
	tx                txRunner
	outbox            outboxPublisher
	gateway           gatewayClient
	router            credentialRouter
	directory         vendorDirectory
	stock             stockLedger
	guard             deliveryGuard
	logg              *logger.Logger
	metrics           *metrics.SettlementMetrics
	currency          string
	defaultCommission decimal.Decimal
	now               func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if params.Router == nil {
		return nil, fmt.Errorf("settlement router required")
	}
	if params.Vendors == nil {
		return nil, fmt.Errorf("vendor directory required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		return nil, fmt.Errorf("currency required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:              params.Repository,
		tx:                params.Tx,
		outbox:            params.Outbox,
		gateway:           params.Gateway,
		router:            params.Router,
		directory:         params.Vendors,
		stock:             params.Stock,
		guard:             params.Guard,
		logg:              params.Logger,
		metrics:           params.Metrics,
		currency:          currency,
		defaultCommission: params.DefaultCommission,
		now:               now,
	}, nil
}

// StartGatewayPayment creates the gateway order for a pending_payment order
// and records which account it settles into.
func (s *service) StartGatewayPayment(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*GatewayCheckout, error) {
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if err := orders.AuthorizeBuyer(order, actor); err != nil {
		return nil, err
	}
	if !order.PaymentMethod.RequiresGateway() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order does not settle through the gateway").
			WithDetails(map[string]any{"paymentMethod": order.PaymentMethod})
	}
	if order.Status != enums.OrderStatusPendingPayment || order.PaymentStatus.IsPaid() {
		return nil, pkgerrors.InvalidState(order.Status.String(), enums.OrderStatusPendingPayment.String())
	}
	if order.GatewayOrderID != nil {
		return s.existingCheckout(ctx, order)
	}

	creds, err := s.router.ResolveCredentials(ctx, order)
	if err != nil {
		return nil, err
	}
	gwOrder, err := s.gateway.CreateOrder(ctx, gateway.Keys{KeyID: creds.KeyID, KeySecret: creds.KeySecret}, gateway.CreateOrderRequest{
		AmountCents: order.TotalCents,
		Currency:    s.currency,
		Reference:   order.ID.String(),
		Notes: map[string]string{
			"order_id": order.ID.String(),
			"buyer_id": order.BuyerID.String(),
		},
	})
	if err != nil {
		return nil, err
	}

	attached, err := s.repo.AttachGatewayOrder(ctx, order.ID, map[string]any{
		"gateway_order_id":     gwOrder.ID,
		"settlement_vendor_id": creds.VendorID,
		"settlement_key_id":    creds.KeyID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach gateway order")
	}
	if !attached {
		current, err := s.load(ctx, s.repo, order.ID)
		if err != nil {
			return nil, err
		}
		if current.GatewayOrderID != nil && current.Status == enums.OrderStatusPendingPayment {
			return s.existingCheckout(ctx, current)
		}
		return nil, pkgerrors.InvalidState(current.Status.String(), enums.OrderStatusPendingPayment.String())
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":         order.ID.String(),
		"gateway_order_id": gwOrder.ID,
		"platform_keys":    creds.IsPlatform(),
	})
	s.logg.Info(logCtx, "payment.gateway_order_created")

	return &GatewayCheckout{
		OrderID:            order.ID,
		GatewayOrderID:     gwOrder.ID,
		KeyID:              creds.KeyID,
		AmountCents:        order.TotalCents,
		Currency:           s.currency,
		SettlementVendorID: creds.VendorID,
	}, nil
}

func (s *service) existingCheckout(ctx context.Context, order *models.Order) (*GatewayCheckout, error) {
	creds, err := s.router.CredentialsForOrder(ctx, order)
	if err != nil {
		return nil, err
	}
	return &GatewayCheckout{
		OrderID:            order.ID,
		GatewayOrderID:     *order.GatewayOrderID,
		KeyID:              creds.KeyID,
		AmountCents:        order.TotalCents,
		Currency:           s.currency,
		SettlementVendorID: order.SettlementVendorID,
	}, nil
}

// VerifyAndApply checks the client-side payment signature and settles the order.
func (s *service) VerifyAndApply(ctx context.Context, input VerifyInput) (*Settlement, error) {
	ref := strings.TrimSpace(input.GatewayOrderRef)
	paymentRef := strings.TrimSpace(input.PaymentRef)
	signature := strings.TrimSpace(input.Signature)
	if ref == "" || paymentRef == "" || signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway order ref, payment ref and signature are required")
	}

	order, err := s.load(ctx, s.repo, input.OrderID)
	if err != nil {
		return nil, err
	}
	if err := orders.AuthorizeBuyer(order, input.Actor); err != nil {
		return nil, err
	}
	if order.PaymentStatus.IsPaid() {
		// settled orders no longer need the keys that created them
		return s.duplicate(ctx, ChannelGatewayVerify, order), nil
	}
	creds, err := s.router.CredentialsForOrder(ctx, order)
	if err != nil {
		return nil, err
	}
	if !gateway.VerifyPayment(creds.KeySecret, ref, paymentRef, signature) {
		s.logg.Warn(s.logg.WithOrderID(ctx, order.ID.String()), "payment.signature_mismatch")
		return nil, pkgerrors.SignatureMismatch()
	}
	if order.GatewayOrderID == nil || *order.GatewayOrderID != ref {
		return nil, pkgerrors.OrderMismatch()
	}

	return s.apply(ctx, applyInput{
		channel:        ChannelGatewayVerify,
		order:          order,
		gatewayOrderID: &ref,
		actor:          input.Actor,
		fields: map[string]any{
			"payment_id":         paymentRef,
			"gateway_payment_id": paymentRef,
			"gateway_signature":  signature,
		},
	})
}

// ApplyManualSettlement marks an order paid on an operator's word.
func (s *service) ApplyManualSettlement(ctx context.Context, input ManualInput) (*Settlement, error) {
	if input.OperatorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "operator id required")
	}
	order, err := s.load(ctx, s.repo, input.OrderID)
	if err != nil {
		return nil, err
	}
	operator := input.OperatorID
	fields := map[string]any{
		"payment_id":       "manual_" + order.ID.String(),
		"admin_settled":    true,
		"admin_settled_at": s.now().UTC(),
		"admin_settled_by": operator,
	}
	if notes := strings.TrimSpace(input.Notes); notes != "" {
		fields["admin_notes"] = notes
	}
	return s.apply(ctx, applyInput{
		channel: ChannelManual,
		order:   order,
		actor:   orders.Actor{ID: operator, Role: enums.ActorRoleAdmin},
		fields:  fields,
	})
}

type applyInput struct {
	channel        string
	order          *models.Order
	gatewayOrderID *string
	actor          orders.Actor
	fields         map[string]any
}

// apply is the single settlement path. The CAS on the order row decides the
// winner; the loser observes AlreadySettled.
func (s *service) apply(ctx context.Context, in applyInput) (*Settlement, error) {
	rates, err := s.commissionRates(ctx, in.order)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	updates := map[string]any{
		"status":         enums.OrderStatusPaid,
		"payment_status": enums.PaymentStatusPaid,
		"paid_at":        now,
	}
	for key, value := range in.fields {
		updates[key] = value
	}

	result := &Settlement{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		won, err := repo.MarkPaid(ctx, in.order.ID, in.gatewayOrderID, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		current, err := s.load(ctx, repo, in.order.ID)
		if err != nil {
			return err
		}
		if !won {
			if current.PaymentStatus.IsPaid() {
				result.Order = current
				result.AlreadySettled = true
				return nil
			}
			if in.gatewayOrderID != nil && current.Status == enums.OrderStatusPendingPayment &&
				(current.GatewayOrderID == nil || *current.GatewayOrderID != *in.gatewayOrderID) {
				return pkgerrors.OrderMismatch()
			}
			return pkgerrors.InvalidState(current.Status.String(), enums.OrderStatusPaid.String())
		}

		paymentID := stringField(updates, "payment_id")
		gatewayPaymentID := stringField(updates, "gateway_payment_id")
		summaries := make([]payloads.UnitSummary, 0, len(current.Units))
		for _, unit := range current.Units {
			commission, payout := Split(unit.TotalPriceCents, s.rateFor(rates, unit.VendorID))
			if err := repo.UpdateUnit(ctx, unit.ID, map[string]any{
				"status":             enums.FulfillmentStatusConfirmed,
				"payment_id":         paymentID,
				"gateway_order_id":   current.GatewayOrderID,
				"gateway_payment_id": gatewayPaymentID,
				"commission_cents":   commission,
				"payout_cents":       payout,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm fulfillment unit")
			}
			summaries = append(summaries, payloads.UnitSummary{
				UnitID:          unit.ID,
				VendorID:        unit.VendorID,
				ItemID:          unit.ItemID,
				Quantity:        unit.Quantity,
				TotalPriceCents: unit.TotalPriceCents,
			})
		}

		shortfalls, err := s.takeStock(ctx, tx, repo, current)
		if err != nil {
			return err
		}
		result.Shortfalls = shortfalls

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   current.ID,
			Actor:         in.actor.Ref(),
			Data: payloads.OrderPaidEvent{
				OrderID:          current.ID,
				BuyerID:          current.BuyerID,
				TotalCents:       current.TotalCents,
				Channel:          in.channel,
				PaymentID:        paymentID,
				GatewayOrderID:   current.GatewayOrderID,
				GatewayPaymentID: gatewayPaymentID,
				SettlementVendor: current.SettlementVendorID,
				PaidAt:           now,
				Units:            summaries,
			},
		}); err != nil {
			return err
		}

		result.Order, err = s.load(ctx, repo, current.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":   in.order.ID.String(),
		"channel":    in.channel,
		"shortfalls": len(result.Shortfalls),
	})
	if result.AlreadySettled {
		return s.duplicate(ctx, in.channel, result.Order), nil
	}
	s.metrics.IncApplied(in.channel)
	s.logg.Info(logCtx, "payment.applied")
	return result, nil
}

func (s *service) duplicate(ctx context.Context, channel string, order *models.Order) *Settlement {
	s.metrics.IncDuplicate(channel)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"channel":  channel,
	}), "payment.duplicate")
	return &Settlement{Order: order, AlreadySettled: true}
}

// takeStock decrements every unit under its own savepoint. A unit that cannot
// be taken is flagged and reported; the payment stands.
func (s *service) takeStock(ctx context.Context, tx *gorm.DB, repo orders.Repository, order *models.Order) ([]Shortfall, error) {
	var shortfalls []Shortfall
	for i, unit := range order.Units {
		sp := fmt.Sprintf("decrement_unit_%d", i)
		if err := tx.SavePoint(sp).Error; err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "savepoint")
		}
		taken, decErr := s.stock.DecrementStock(ctx, tx, unit.ItemID, unit.Quantity)
		if decErr == nil && taken {
			continue
		}
		if err := tx.RollbackTo(sp).Error; err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rollback savepoint")
		}

		reason := "insufficient stock"
		if decErr != nil {
			reason = decErr.Error()
		}
		shortfall := Shortfall{
			UnitID:   unit.ID,
			ItemID:   unit.ItemID,
			VendorID: unit.VendorID,
			Quantity: unit.Quantity,
			Reason:   reason,
		}
		if err := repo.UpdateUnit(ctx, unit.ID, map[string]any{"stock_shortfall": true}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag stock shortfall")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStockShortfall,
			AggregateType: enums.AggregateFulfillmentUnit,
			AggregateID:   unit.ID,
			Data: payloads.StockShortfallEvent{
				OrderID:  order.ID,
				UnitID:   unit.ID,
				ItemID:   unit.ItemID,
				VendorID: unit.VendorID,
				Quantity: unit.Quantity,
				Error:    reason,
			},
		}); err != nil {
			return nil, err
		}

		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id": order.ID.String(),
			"unit_id":  unit.ID.String(),
			"item_id":  unit.ItemID.String(),
			"quantity": unit.Quantity,
		})
		logCtx = s.logg.WithVendorID(logCtx, unit.VendorID.String())
		cause := decErr
		if cause == nil {
			cause = errors.New(reason)
		}
		s.logg.Error(logCtx, "stock.shortfall", cause)
		s.metrics.IncStockShortfall()
		shortfalls = append(shortfalls, shortfall)
	}
	return shortfalls, nil
}

func (s *service) load(ctx context.Context, repo orders.Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.NotFound("order", orderID.String())
	}
	return order, nil
}

func stringField(fields map[string]any, key string) *string {
	value, ok := fields[key].(string)
	if !ok || value == "" {
		return nil
	}
	return &value
}
