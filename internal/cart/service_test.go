package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-settlement/internal/catalog"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
)

type fixture struct {
	svc     Service
	catalog catalog.Repository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	catRepo := catalog.NewRepository(conn)
	catSvc, err := catalog.NewService(catRepo)
	require.NoError(t, err)
	svc, err := NewService(NewRepository(conn), catSvc)
	require.NoError(t, err)
	return fixture{svc: svc, catalog: catRepo}
}

func (f fixture) seed(t *testing.T) uuid.UUID {
	t.Helper()
	item := &models.CatalogItem{VendorID: uuid.New(), Title: "item", PriceCents: 500, Stock: 10}
	require.NoError(t, f.catalog.Create(context.Background(), item))
	return item.ID
}

func TestAddItemUpsertsQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := uuid.New()
	first := f.seed(t)
	second := f.seed(t)

	require.NoError(t, f.svc.AddItem(ctx, buyer, first, 1))
	require.NoError(t, f.svc.AddItem(ctx, buyer, second, 2))
	require.NoError(t, f.svc.AddItem(ctx, buyer, first, 4))

	lines, err := f.svc.List(ctx, nil, buyer)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	byItem := map[uuid.UUID]int{}
	for _, l := range lines {
		byItem[l.ItemID] = l.Quantity
	}
	assert.Equal(t, 4, byItem[first])
	assert.Equal(t, 2, byItem[second])
}

func TestAddItemValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := uuid.New()

	err := f.svc.AddItem(ctx, buyer, f.seed(t), 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = f.svc.AddItem(ctx, buyer, uuid.New(), 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRemoveAndClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := uuid.New()
	other := uuid.New()
	a, b := f.seed(t), f.seed(t)

	require.NoError(t, f.svc.AddItem(ctx, buyer, a, 1))
	require.NoError(t, f.svc.AddItem(ctx, buyer, b, 1))
	require.NoError(t, f.svc.AddItem(ctx, other, a, 3))

	require.NoError(t, f.svc.RemoveItem(ctx, buyer, a))
	lines, err := f.svc.List(ctx, nil, buyer)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, b, lines[0].ItemID)

	require.NoError(t, f.svc.Clear(ctx, nil, buyer))
	lines, err = f.svc.List(ctx, nil, buyer)
	require.NoError(t, err)
	assert.Empty(t, lines)

	lines, err = f.svc.List(ctx, nil, other)
	require.NoError(t, err)
	assert.Len(t, lines, 1, "clearing one buyer leaves others intact")
}

func TestConsumeKeepsLinesChangedAfterSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := uuid.New()
	a, b, c := f.seed(t), f.seed(t), f.seed(t)

	require.NoError(t, f.svc.AddItem(ctx, buyer, a, 1))
	require.NoError(t, f.svc.AddItem(ctx, buyer, b, 1))
	snapshot, err := f.svc.List(ctx, nil, buyer)
	require.NoError(t, err)

	// the buyer edits the cart while the order is being built
	require.NoError(t, f.svc.AddItem(ctx, buyer, b, 4))
	require.NoError(t, f.svc.AddItem(ctx, buyer, c, 2))

	require.NoError(t, f.svc.Consume(ctx, nil, buyer, snapshot))

	lines, err := f.svc.List(ctx, nil, buyer)
	require.NoError(t, err)
	left := map[uuid.UUID]int{}
	for _, line := range lines {
		left[line.ItemID] = line.Quantity
	}
	assert.Equal(t, map[uuid.UUID]int{b: 4, c: 2}, left)
}
