package vendors

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
)

// Repository persists vendor settlement configs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context, vendorID uuid.UUID) (*models.VendorSettlementConfig, error)
	CreateIfAbsent(ctx context.Context, cfg *models.VendorSettlementConfig) error
	Save(ctx context.Context, cfg *models.VendorSettlementConfig) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a vendor settlement repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Find(ctx context.Context, vendorID uuid.UUID) (*models.VendorSettlementConfig, error) {
	var cfg models.VendorSettlementConfig
	err := r.db.WithContext(ctx).Where("vendor_id = ?", vendorID).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

// CreateIfAbsent inserts the default row; a concurrent first lookup wins silently.
func (r *repository) CreateIfAbsent(ctx context.Context, cfg *models.VendorSettlementConfig) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "vendor_id"}}, DoNothing: true}).
		Create(cfg).Error
}

func (r *repository) Save(ctx context.Context, cfg *models.VendorSettlementConfig) error {
	return r.db.WithContext(ctx).Save(cfg).Error
}
