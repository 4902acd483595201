package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
)

// Repository persists catalog items and their stock counters.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, item *models.CatalogItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CatalogItem, error)
	UpdatePrice(ctx context.Context, id uuid.UUID, priceCents int64) error
	Decrement(ctx context.Context, id uuid.UUID, qty int) (bool, error)
	Restore(ctx context.Context, id uuid.UUID, qty int) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, item *models.CatalogItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.IsActive = item.Stock > 0
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CatalogItem, error) {
	var item models.CatalogItem
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repository) UpdatePrice(ctx context.Context, id uuid.UUID, priceCents int64) error {
	return r.db.WithContext(ctx).
		Model(&models.CatalogItem{}).
		Where("id = ?", id).
		Update("price_cents", priceCents).Error
}

// Decrement takes qty units only while enough stock remains; false means the
// guard rejected the write.
func (r *repository) Decrement(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CatalogItem{}).
		Where("id = ? AND stock >= ?", id, qty).
		Updates(map[string]any{
			"stock":     gorm.Expr("stock - ?", qty),
			"is_active": gorm.Expr("stock - ? > 0", qty),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Restore(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CatalogItem{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"stock":     gorm.Expr("stock + ?", qty),
			"is_active": gorm.Expr("stock + ? > 0", qty),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
