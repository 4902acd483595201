package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
)

// Item is the price and stock view the settlement engine reads.
type Item struct {
	ID         uuid.UUID
	VendorID   uuid.UUID
	Title      string
	PriceCents int64
	Stock      int
}

// Service is the stock ledger surface. A non-nil tx joins the caller's transaction.
type Service interface {
	GetItem(ctx context.Context, id uuid.UUID) (*Item, error)
	DecrementStock(ctx context.Context, tx *gorm.DB, id uuid.UUID, qty int) (bool, error)
	RestoreStock(ctx context.Context, tx *gorm.DB, id uuid.UUID, qty int) error
}

type service struct {
	repo Repository
}

// NewService builds the catalog stock ledger.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetItem(ctx context.Context, id uuid.UUID) (*Item, error) {
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load catalog item")
	}
	if row == nil {
		return nil, pkgerrors.NotFound("item", id.String())
	}
	return &Item{
		ID:         row.ID,
		VendorID:   row.VendorID,
		Title:      row.Title,
		PriceCents: row.PriceCents,
		Stock:      row.Stock,
	}, nil
}

func (s *service) DecrementStock(ctx context.Context, tx *gorm.DB, id uuid.UUID, qty int) (bool, error) {
	if qty <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	ok, err := s.repo.WithTx(tx).Decrement(ctx, id, qty)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
	}
	return ok, nil
}

func (s *service) RestoreStock(ctx context.Context, tx *gorm.DB, id uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	ok, err := s.repo.WithTx(tx).Restore(ctx, id, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore stock")
	}
	if !ok {
		return pkgerrors.NotFound("item", id.String())
	}
	return nil
}
