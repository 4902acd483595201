package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-settlement/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
)

func newTestCatalog(t *testing.T) (Service, Repository) {
	t.Helper()
	repo := NewRepository(dbtest.Open(t))
	svc, err := NewService(repo)
	require.NoError(t, err)
	return svc, repo
}

func seedItem(t *testing.T, repo Repository, stock int) *models.CatalogItem {
	t.Helper()
	item := &models.CatalogItem{VendorID: uuid.New(), Title: "widget", PriceCents: 1000, Stock: stock}
	require.NoError(t, repo.Create(context.Background(), item))
	return item
}

func TestDecrementStockGuardsAgainstNegative(t *testing.T) {
	svc, repo := newTestCatalog(t)
	ctx := context.Background()
	item := seedItem(t, repo, 3)

	ok, err := svc.DecrementStock(ctx, nil, item.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.DecrementStock(ctx, nil, item.ID, 2)
	require.NoError(t, err)
	assert.False(t, ok, "decrement beyond available stock must fail closed")

	row, err := repo.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, row.Stock)
	assert.True(t, row.IsActive)

	ok, err = svc.DecrementStock(ctx, nil, item.ID, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	row, err = repo.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, row.Stock)
	assert.False(t, row.IsActive, "empty items become inactive")
}

func TestRestoreStockReactivates(t *testing.T) {
	svc, repo := newTestCatalog(t)
	ctx := context.Background()
	item := seedItem(t, repo, 0)

	require.NoError(t, svc.RestoreStock(ctx, nil, item.ID, 4))
	row, err := repo.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, row.Stock)
	assert.True(t, row.IsActive)
}

func TestRestoreStockUnknownItem(t *testing.T) {
	svc, _ := newTestCatalog(t)
	err := svc.RestoreStock(context.Background(), nil, uuid.New(), 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestGetItem(t *testing.T) {
	svc, repo := newTestCatalog(t)
	ctx := context.Background()
	item := seedItem(t, repo, 5)

	got, err := svc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.VendorID, got.VendorID)
	assert.Equal(t, int64(1000), got.PriceCents)
	assert.Equal(t, 5, got.Stock)

	_, err = svc.GetItem(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDecrementRejectsNonPositiveQuantity(t *testing.T) {
	svc, repo := newTestCatalog(t)
	item := seedItem(t, repo, 5)
	_, err := svc.DecrementStock(context.Background(), nil, item.ID, 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
