package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-settlement/internal/cart"
	"github.com/angelmondragon/marketplace-settlement/internal/catalog"
	"github.com/angelmondragon/marketplace-settlement/pkg/db"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/metrics"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox/payloads"
)

const openOrderIndex = "ux_orders_open_buyer"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type cartReader interface {
	List(ctx context.Context, tx *gorm.DB, buyerID uuid.UUID) ([]cart.Line, error)
	Consume(ctx context.Context, tx *gorm.DB, buyerID uuid.UUID, lines []cart.Line) error
}

// StockLedger is the catalog surface orders need: price reads and compensating restores.
type StockLedger interface {
	GetItem(ctx context.Context, id uuid.UUID) (*catalog.Item, error)
	RestoreStock(ctx context.Context, tx *gorm.DB, id uuid.UUID, qty int) error
}

// Service owns the order lifecycle outside of payment application.
type Service interface {
	BuildFromCart(ctx context.Context, input BuildInput) (*models.Order, error)
	Checkout(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
	Advance(ctx context.Context, input AdvanceInput) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

// BuildInput carries the buyer-supplied order header.
type BuildInput struct {
	BuyerID         uuid.UUID
	ShippingAddress string
	PhoneNumber     string
	Notes           *string
	PaymentMethod   string
}

// CancelInput describes a cancellation. Expiry restricts the cancel to
// unpaid pending_payment orders and additionally emits order_expired.
type CancelInput struct {
	OrderID uuid.UUID
	Actor   Actor
	Reason  string
	Expiry  bool
}

// AdvanceInput moves a paid order through fulfillment.
type AdvanceInput struct {
	OrderID uuid.UUID
	Actor   Actor
	Target  enums.OrderStatus
}

type ServiceParams struct {
	Repository Repository
	Tx         txRunner
	Outbox     outboxPublisher
	Cart       cartReader
	Stock      StockLedger
	Logger     *logger.Logger
	Metrics    *metrics.SettlementMetrics
	Now        func() time.Time
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	cart    cartReader
	stock   StockLedger
	logg    *logger.Logger
	metrics *metrics.SettlementMetrics
	now     func() time.Time
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
	if params.Cart == nil {
		return nil, fmt.Errorf("cart reader required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:    params.Repository,
		tx:      params.Tx,
		outbox:  params.Outbox,
		cart:    params.Cart,
		stock:   params.Stock,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

// BuildFromCart snapshots the cart into the buyer's single open order.
func (s *service) BuildFromCart(ctx context.Context, input BuildInput) (*models.Order, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	address := strings.TrimSpace(input.ShippingAddress)
	phone := strings.TrimSpace(input.PhoneNumber)
	if address == "" || phone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address and phone number are required")
	}
	method, err := enums.ParsePaymentMethod(input.PaymentMethod)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method")
	}

	lines, err := s.cart.List(ctx, nil, input.BuyerID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, pkgerrors.EmptyCart()
	}
	units, total, err := s.snapshotUnits(ctx, input.BuyerID, lines)
	if err != nil {
		return nil, err
	}

	header := map[string]any{
		"shipping_address":     address,
		"phone_number":         phone,
		"notes":                trimmedOrNil(input.Notes),
		"total_cents":          total,
		"status":               enums.OrderStatusDraft,
		"payment_status":       enums.PaymentStatusUnpaid,
		"payment_method":       method,
		"payment_id":           nil,
		"gateway_order_id":     nil,
		"gateway_payment_id":   nil,
		"gateway_signature":    nil,
		"settlement_vendor_id": nil,
		"settlement_key_id":    nil,
		"checked_out_at":       nil,
	}

	var orderID uuid.UUID
	rebuilt := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		id, overwritten, err := s.overwriteOpen(ctx, tx, repo, input.BuyerID, header, units)
		if err != nil {
			return err
		}
		if !overwritten {
			order := &models.Order{
				BuyerID:         input.BuyerID,
				ShippingAddress: address,
				PhoneNumber:     phone,
				Notes:           trimmedOrNil(input.Notes),
				TotalCents:      total,
				Status:          enums.OrderStatusDraft,
				PaymentStatus:   enums.PaymentStatusUnpaid,
				PaymentMethod:   method,
				Units:           cloneUnits(units),
			}
			if err := tx.SavePoint("create_order").Error; err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "savepoint")
			}
			createErr := repo.Create(ctx, order)
			switch {
			case createErr == nil:
				id = order.ID
			case db.IsUniqueViolation(createErr, openOrderIndex):
				// a concurrent build created the open order first; supersede it
				if err := tx.RollbackTo("create_order").Error; err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rollback savepoint")
				}
				id, overwritten, err = s.overwriteOpen(ctx, tx, repo, input.BuyerID, header, units)
				if err != nil {
					return err
				}
				if !overwritten {
					return pkgerrors.New(pkgerrors.CodeConflict, "open order changed concurrently")
				}
			default:
				return pkgerrors.Wrap(pkgerrors.CodeDependency, createErr, "create order")
			}
		}
		orderID = id
		rebuilt = overwritten

		// only the snapshotted lines leave the cart
		if err := s.cart.Consume(ctx, tx, input.BuyerID, lines); err != nil {
			return err
		}

		vendorIDs := (&models.Order{Units: units}).VendorIDs()
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &outbox.ActorRef{UserID: input.BuyerID, Role: enums.ActorRoleBuyer.String()},
			Data: payloads.OrderCreatedEvent{
				OrderID:       orderID,
				BuyerID:       input.BuyerID,
				TotalCents:    total,
				PaymentMethod: method,
				VendorIDs:     vendorIDs,
				Rebuilt:       rebuilt,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":    orderID.String(),
		"buyer_id":    input.BuyerID.String(),
		"total_cents": total,
		"units":       len(units),
		"rebuilt":     rebuilt,
	})
	s.logg.Info(logCtx, "order.built")
	return s.load(ctx, nil, orderID)
}

// overwriteOpen replaces the buyer's open order header and units. The bool is
// false when no open order exists or it stopped being open.
func (s *service) overwriteOpen(ctx context.Context, tx *gorm.DB, repo Repository, buyerID uuid.UUID, header map[string]any, units []models.FulfillmentUnit) (uuid.UUID, bool, error) {
	open, err := repo.FindOpenByBuyer(ctx, buyerID)
	if err != nil {
		return uuid.Nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open order")
	}
	if open == nil {
		return uuid.Nil, false, nil
	}
	ok, err := repo.ResetOpen(ctx, open.ID, header)
	if err != nil {
		return uuid.Nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset open order")
	}
	if !ok {
		return uuid.Nil, false, nil
	}
	if ref := open.GatewayOrderID; ref != nil && *ref != "" {
		err := repo.RecordSupersededRef(ctx, &models.SupersededGatewayOrder{
			GatewayOrderID:     *ref,
			OrderID:            open.ID,
			SettlementVendorID: open.SettlementVendorID,
		})
		if err != nil {
			return uuid.Nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record superseded gateway order")
		}
	}
	if err := repo.ReplaceUnits(ctx, open.ID, cloneUnits(units)); err != nil {
		return uuid.Nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replace fulfillment units")
	}
	return open.ID, true, nil
}

func (s *service) snapshotUnits(ctx context.Context, buyerID uuid.UUID, lines []cart.Line) ([]models.FulfillmentUnit, int64, error) {
	units := make([]models.FulfillmentUnit, 0, len(lines))
	var total int64
	for i, line := range lines {
		item, err := s.stock.GetItem(ctx, line.ItemID)
		if err != nil {
			return nil, 0, err
		}
		if item.Stock < line.Quantity {
			return nil, 0, pkgerrors.InsufficientStock(item.ID.String(), item.Stock, line.Quantity)
		}
		unit := models.FulfillmentUnit{
			VendorID:       item.VendorID,
			BuyerID:        buyerID,
			ItemID:         item.ID,
			Position:       i,
			Quantity:       line.Quantity,
			UnitPriceCents: item.PriceCents,
			Status:         enums.FulfillmentStatusPending,
		}
		unit.Reprice()
		total += unit.TotalPriceCents
		units = append(units, unit)
	}
	return units, total, nil
}

func (s *service) Checkout(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := AuthorizeBuyer(order, actor); err != nil {
			return err
		}
		if order.Status != enums.OrderStatusDraft {
			return pkgerrors.InvalidState(order.Status.String(), enums.OrderStatusPendingPayment.String())
		}

		now := s.now().UTC()
		ok, err := repo.UpdateStatusFrom(ctx, order.ID, enums.OrderStatusDraft, map[string]any{
			"status":         enums.OrderStatusPendingPayment,
			"checked_out_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checkout order")
		}
		if !ok {
			current, err := s.load(ctx, tx, orderID)
			if err != nil {
				return err
			}
			return pkgerrors.InvalidState(current.Status.String(), enums.OrderStatusPendingPayment.String())
		}
		if err := repo.UpdateUnits(ctx, order.ID, map[string]any{"status": enums.FulfillmentStatusPending}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update fulfillment units")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCheckedOut,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor.Ref(),
			Data: payloads.OrderCheckedOutEvent{
				OrderID:      order.ID,
				BuyerID:      order.BuyerID,
				TotalCents:   order.TotalCents,
				CheckedOutAt: now,
			},
		}); err != nil {
			return err
		}

		result, err = s.load(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), "order.checkout")
	return result, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	var result *models.Order
	var previous enums.OrderStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		if order == nil {
			return pkgerrors.NotFound("order", input.OrderID.String())
		}
		if err := AuthorizeBuyer(order, input.Actor); err != nil {
			return err
		}
		if !CanCancel(order.Status) {
			return pkgerrors.NotCancellable(order.Status.String())
		}
		if input.Expiry && (order.Status != enums.OrderStatusPendingPayment || order.PaymentStatus.IsPaid()) {
			return pkgerrors.InvalidState(order.Status.String(), enums.OrderStatusCancelled.String())
		}
		previous = order.Status

		restored := false
		if order.PaymentStatus.IsPaid() {
			restored = s.restoreStock(ctx, tx, order)
		}

		now := s.now().UTC()
		ok, err := repo.UpdateStatusFrom(ctx, order.ID, order.Status, map[string]any{
			"status":       enums.OrderStatusCancelled,
			"cancelled_at": now,
			"notes":        appendNote(order.Notes, input.Reason),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !ok {
			// rolls back any restores performed above
			return pkgerrors.InvalidState(order.Status.String(), enums.OrderStatusCancelled.String())
		}
		if err := repo.UpdateUnits(ctx, order.ID, map[string]any{"status": enums.FulfillmentStatusCancelled}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel fulfillment units")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCanceled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         input.Actor.Ref(),
			Data: payloads.OrderCanceledEvent{
				OrderID:       order.ID,
				BuyerID:       order.BuyerID,
				PreviousState: previous,
				StockRestored: restored,
				CanceledAt:    now,
				Reason:        strings.TrimSpace(input.Reason),
			},
		}); err != nil {
			return err
		}
		if input.Expiry {
			event := payloads.OrderExpiredEvent{OrderID: order.ID, BuyerID: order.BuyerID, ExpiredAt: now}
			if order.CheckedOutAt != nil {
				event.CheckedOutAt = order.CheckedOutAt.UTC()
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderExpired,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         input.Actor.Ref(),
				Data:          event,
			}); err != nil {
				return err
			}
		}

		result, err = s.load(ctx, tx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":        input.OrderID.String(),
		"previous_status": previous,
		"actor_role":      input.Actor.Role,
		"expiry":          input.Expiry,
	})
	s.logg.Info(logCtx, "order.cancelled")
	return result, nil
}

// restoreStock returns every decremented unit to the catalog. Each restore runs
// under its own savepoint so a failure leaves the transaction usable.
func (s *service) restoreStock(ctx context.Context, tx *gorm.DB, order *models.Order) bool {
	all := true
	for i, unit := range order.Units {
		if unit.StockShortfall {
			continue
		}
		sp := fmt.Sprintf("restore_unit_%d", i)
		if err := tx.SavePoint(sp).Error; err != nil {
			s.restoreFailed(ctx, tx, order, unit, err, "")
			all = false
			continue
		}
		if err := s.stock.RestoreStock(ctx, tx, unit.ItemID, unit.Quantity); err != nil {
			s.restoreFailed(ctx, tx, order, unit, err, sp)
			all = false
		}
	}
	return all
}

func (s *service) restoreFailed(ctx context.Context, tx *gorm.DB, order *models.Order, unit models.FulfillmentUnit, cause error, savepoint string) {
	if savepoint != "" {
		if err := tx.RollbackTo(savepoint).Error; err != nil {
			s.logg.Error(ctx, "rollback restore savepoint", err)
		}
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"unit_id":  unit.ID.String(),
		"item_id":  unit.ItemID.String(),
		"quantity": unit.Quantity,
	})
	s.logg.Error(logCtx, "stock.restore_failed", cause)
	s.metrics.IncStockRestoreFailed()

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventStockRestoreFailed,
		AggregateType: enums.AggregateFulfillmentUnit,
		AggregateID:   unit.ID,
		Data: payloads.StockRestoreFailedEvent{
			OrderID:  order.ID,
			UnitID:   unit.ID,
			ItemID:   unit.ItemID,
			Quantity: unit.Quantity,
			Error:    cause.Error(),
		},
	}); err != nil {
		s.logg.Error(logCtx, "emit stock restore alert", err)
	}
}

func (s *service) Advance(ctx context.Context, input AdvanceInput) (*models.Order, error) {
	switch input.Target {
	case enums.OrderStatusProcessing, enums.OrderStatusShipped, enums.OrderStatusDelivered:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "target must be processing, shipped or delivered").
			WithDetails(map[string]any{"target": input.Target})
	}

	var result *models.Order
	var from enums.OrderStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		if err := AuthorizeFulfillment(order, input.Actor); err != nil {
			return err
		}
		from = order.Status
		if !CanTransition(from, input.Target) {
			return pkgerrors.InvalidState(from.String(), input.Target.String())
		}

		ok, err := repo.UpdateStatusFrom(ctx, order.ID, from, map[string]any{"status": input.Target})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance order")
		}
		if !ok {
			current, err := s.load(ctx, tx, order.ID)
			if err != nil {
				return err
			}
			return pkgerrors.InvalidState(current.Status.String(), input.Target.String())
		}
		if unitStatus, ok := unitStatusFor(input.Target); ok {
			if err := repo.UpdateUnits(ctx, order.ID, map[string]any{"status": unitStatus}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update fulfillment units")
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStateChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         input.Actor.Ref(),
			Data:          payloads.OrderStateChangedEvent{OrderID: order.ID, From: from, To: input.Target},
		}); err != nil {
			return err
		}
		result, err = s.load(ctx, tx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id": input.OrderID.String(),
		"from":     from,
		"to":       input.Target,
	})
	s.logg.Info(logCtx, "order.advanced")
	return result, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := s.load(ctx, nil, orderID)
	if err != nil {
		return nil, err
	}
	if err := AuthorizeView(order, actor); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	rows, err := s.repo.ListExpiredPending(ctx, cutoff, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired orders")
	}
	return rows, nil
}

func (s *service) load(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.WithTx(tx).FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.NotFound("order", orderID.String())
	}
	return order, nil
}

func appendNote(existing *string, note string) *string {
	note = strings.TrimSpace(note)
	if note == "" {
		return existing
	}
	if existing == nil || strings.TrimSpace(*existing) == "" {
		return &note
	}
	joined := *existing + "\n" + note
	return &joined
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func cloneUnits(units []models.FulfillmentUnit) []models.FulfillmentUnit {
	out := make([]models.FulfillmentUnit, len(units))
	copy(out, units)
	return out
}
