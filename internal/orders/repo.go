package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-settlement/pkg/db"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
)

// Repository persists orders and their fulfillment units.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOpenByBuyer(ctx context.Context, buyerID uuid.UUID) (*models.Order, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error)
	RecordSupersededRef(ctx context.Context, ref *models.SupersededGatewayOrder) error
	FindSupersededRef(ctx context.Context, gatewayOrderID string) (*models.SupersededGatewayOrder, error)
	Create(ctx context.Context, order *models.Order) error
	ResetOpen(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error)
	ReplaceUnits(ctx context.Context, orderID uuid.UUID, units []models.FulfillmentUnit) error
	UpdateStatusFrom(ctx context.Context, id uuid.UUID, from enums.OrderStatus, updates map[string]any) (bool, error)
	MarkPaid(ctx context.Context, id uuid.UUID, gatewayOrderID *string, updates map[string]any) (bool, error)
	AttachGatewayOrder(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error)
	MarkPaymentFailed(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error
	UpdateUnits(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	UpdateUnit(ctx context.Context, unitID uuid.UUID, updates map[string]any) error
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func withUnits(q *gorm.DB) *gorm.DB {
	return q.Preload("Units", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

func first(q *gorm.DB) (*models.Order, error) {
	var order models.Order
	if err := q.First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return first(withUnits(r.db.WithContext(ctx)).Where("id = ?", id))
}

// FindByIDForUpdate locks the order row for the rest of the transaction on Postgres.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return first(withUnits(db.ForUpdate(r.db.WithContext(ctx))).Where("id = ?", id))
}

func (r *repository) FindOpenByBuyer(ctx context.Context, buyerID uuid.UUID) (*models.Order, error) {
	return first(withUnits(r.db.WithContext(ctx)).
		Where("buyer_id = ? AND status IN ? AND payment_status <> ?",
			buyerID, enums.OpenOrderStatuses, enums.PaymentStatusPaid).
		Order("created_at DESC"))
}

func (r *repository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	return first(withUnits(r.db.WithContext(ctx)).Where("gateway_order_id = ?", gatewayOrderID))
}

// RecordSupersededRef keeps a dropped gateway order so late captures can be
// traced back to its order. Recording the same ref twice is a no-op.
func (r *repository) RecordSupersededRef(ctx context.Context, ref *models.SupersededGatewayOrder) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "gateway_order_id"}}, DoNothing: true}).
		Create(ref).Error
}

func (r *repository) FindSupersededRef(ctx context.Context, gatewayOrderID string) (*models.SupersededGatewayOrder, error) {
	var ref models.SupersededGatewayOrder
	err := r.db.WithContext(ctx).Where("gateway_order_id = ?", gatewayOrderID).First(&ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// Create inserts the order and its units. Ids are assigned here so every
// backend sees the same values.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.Units {
		prepareUnit(&order.Units[i], order.ID)
	}
	return r.db.WithContext(ctx).Create(order).Error
}

// ResetOpen overwrites an open order in place. False means the order left the
// open set before the write landed.
func (r *repository) ResetOpen(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status IN ? AND payment_status <> ?", id, enums.OpenOrderStatuses, enums.PaymentStatusPaid).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ReplaceUnits(ctx context.Context, orderID uuid.UUID, units []models.FulfillmentUnit) error {
	q := r.db.WithContext(ctx)
	if err := q.Where("order_id = ?", orderID).Delete(&models.FulfillmentUnit{}).Error; err != nil {
		return err
	}
	if len(units) == 0 {
		return nil
	}
	for i := range units {
		prepareUnit(&units[i], orderID)
	}
	return q.Create(&units).Error
}

// UpdateStatusFrom applies updates only while the order is still in from.
func (r *repository) UpdateStatusFrom(ctx context.Context, id uuid.UUID, from enums.OrderStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkPaid is the settlement compare-and-set. Exactly one caller observes true.
// A non-nil gatewayOrderID additionally pins the gateway order the payment was made against.
func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, gatewayOrderID *string, updates map[string]any) (bool, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status <> ? AND status = ?", id, enums.PaymentStatusPaid, enums.OrderStatusPendingPayment)
	if gatewayOrderID != nil {
		q = q.Where("gateway_order_id = ?", *gatewayOrderID)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AttachGatewayOrder records the gateway order once. False means another
// caller attached first or the order left pending_payment.
func (r *repository) AttachGatewayOrder(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ? AND gateway_order_id IS NULL", id, enums.OrderStatusPendingPayment).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkPaymentFailed flags a failed attempt unless the order already settled.
func (r *repository) MarkPaymentFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status NOT IN ?", id, []enums.PaymentStatus{enums.PaymentStatusPaid, enums.PaymentStatusFailed}).
		Update("payment_status", enums.PaymentStatusFailed)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) UpdateUnits(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.FulfillmentUnit{}).
		Where("order_id = ?", orderID).
		Updates(updates).Error
}

func (r *repository) UpdateUnit(ctx context.Context, unitID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.FulfillmentUnit{}).
		Where("id = ?", unitID).
		Updates(updates).Error
}

// ListExpiredPending returns unpaid pending_payment orders checked out before cutoff, oldest first.
func (r *repository) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var out []models.Order
	q := r.db.WithContext(ctx).
		Where("status = ? AND payment_status <> ? AND checked_out_at IS NOT NULL AND checked_out_at < ?",
			enums.OrderStatusPendingPayment, enums.PaymentStatusPaid, cutoff).
		Order("checked_out_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func prepareUnit(unit *models.FulfillmentUnit, orderID uuid.UUID) {
	if unit.ID == uuid.Nil {
		unit.ID = uuid.New()
	}
	unit.OrderID = orderID
	unit.Reprice()
}
