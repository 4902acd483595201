package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-settlement/internal/catalog"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
)

type itemLoader interface {
	GetItem(ctx context.Context, id uuid.UUID) (*catalog.Item, error)
}

// Line is a cart entry as the order builder consumes it.
type Line struct {
	ItemID   uuid.UUID
	Quantity int
}

// Service manages the buyer's cart snapshot. A non-nil tx joins the caller's transaction.
type Service interface {
	AddItem(ctx context.Context, buyerID, itemID uuid.UUID, qty int) error
	RemoveItem(ctx context.Context, buyerID, itemID uuid.UUID) error
	List(ctx context.Context, tx *gorm.DB, buyerID uuid.UUID) ([]Line, error)
	Clear(ctx context.Context, tx *gorm.DB, buyerID uuid.UUID) error
	Consume(ctx context.Context, tx *gorm.DB, buyerID uuid.UUID, lines []Line) error
}

type service struct {
	repo  Repository
	items itemLoader
}

// NewService builds a cart service backed by the catalog for item validation.
func NewService(repo Repository, items itemLoader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if items == nil {
		return nil, fmt.Errorf("item loader required")
	}
	return &service{repo: repo, items: items}, nil
}

// AddItem sets the quantity for an item; stock is checked at order build time.
func (s *service) AddItem(ctx context.Context, buyerID, itemID uuid.UUID, qty int) error {
	if buyerID == uuid.Nil || itemID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer id and item id are required")
	}
	if qty < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
			WithDetails(map[string]any{"quantity": qty})
	}
	if _, err := s.items.GetItem(ctx, itemID); err != nil {
		return err
	}
	if err := s.repo.Upsert(ctx, &models.CartItem{BuyerID: buyerID, ItemID: itemID, Quantity: qty}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart item")
	}
	return nil
}

func (s *service) RemoveItem(ctx context.Context, buyerID, itemID uuid.UUID) error {
	if err := s.repo.Remove(ctx, buyerID, itemID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	return nil
}

func (s *service) List(ctx context.Context, tx *gorm.DB, buyerID uuid.UUID) ([]Line, error) {
	rows, err := s.repo.WithTx(tx).ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	lines := make([]Line, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, Line{ItemID: row.ItemID, Quantity: row.Quantity})
	}
	return lines, nil
}

func (s *service) Clear(ctx context.Context, tx *gorm.DB, buyerID uuid.UUID) error {
	if err := s.repo.WithTx(tx).Clear(ctx, buyerID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

// Consume removes the given lines from the cart. A line whose quantity changed
// after it was read stays for the next build.
func (s *service) Consume(ctx context.Context, tx *gorm.DB, buyerID uuid.UUID, lines []Line) error {
	repo := s.repo.WithTx(tx)
	for _, line := range lines {
		if err := repo.RemoveLine(ctx, buyerID, line.ItemID, line.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume cart line")
		}
	}
	return nil
}
