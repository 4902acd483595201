package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
)

// Repository persists a buyer's staged cart lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.CartItem, error)
	Upsert(ctx context.Context, item *models.CartItem) error
	Remove(ctx context.Context, buyerID, itemID uuid.UUID) error
	RemoveLine(ctx context.Context, buyerID, itemID uuid.UUID, qty int) error
	Clear(ctx context.Context, buyerID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// ListByBuyer returns lines in the order the buyer first added them.
func (r *repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at ASC").
		Order("item_id ASC").
		Find(&items).Error
	return items, err
}

// Upsert replaces the quantity of an existing line and keeps its original position.
func (r *repository) Upsert(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "buyer_id"}, {Name: "item_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
		}).
		Create(item).Error
}

func (r *repository) Remove(ctx context.Context, buyerID, itemID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("buyer_id = ? AND item_id = ?", buyerID, itemID).
		Delete(&models.CartItem{}).Error
}

// RemoveLine deletes the line only while it still holds qty.
func (r *repository) RemoveLine(ctx context.Context, buyerID, itemID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).
		Where("buyer_id = ? AND item_id = ? AND quantity = ?", buyerID, itemID, qty).
		Delete(&models.CartItem{}).Error
}

func (r *repository) Clear(ctx context.Context, buyerID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Delete(&models.CartItem{}).Error
}
