package vendors

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-settlement/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repository:        NewRepository(dbtest.Open(t)),
		Logger:            logger.New(logger.Options{ServiceName: "test"}),
		DefaultCommission: decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	return svc
}

func strPtr(v string) *string { return &v }

func TestGetConfigCreatesManualDefault(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	vendorID := uuid.New()

	cfg, err := svc.GetConfig(ctx, vendorID)
	require.NoError(t, err)
	assert.Equal(t, enums.SettlementMethodManual, cfg.Method)
	assert.True(t, cfg.GatewayEnabled)
	assert.True(t, cfg.CommissionPercent.Equal(decimal.NewFromInt(10)))
	assert.False(t, cfg.HasGatewayCredentials())

	again, err := svc.GetConfig(ctx, vendorID)
	require.NoError(t, err)
	assert.Equal(t, cfg.VendorID, again.VendorID)
}

func TestUpdateConfigGatewayRequiresKeys(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	vendorID := uuid.New()

	_, err := svc.UpdateConfig(ctx, vendorID, UpdateInput{
		Method:       enums.SettlementMethodGateway,
		GatewayKeyID: strPtr("rzp_vendor"),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	cfg, err := svc.UpdateConfig(ctx, vendorID, UpdateInput{
		Method:           enums.SettlementMethodGateway,
		GatewayKeyID:     strPtr(" rzp_vendor "),
		GatewayKeySecret: strPtr("vendor-secret"),
	})
	require.NoError(t, err)
	assert.True(t, cfg.HasGatewayCredentials())
	assert.Equal(t, "rzp_vendor", *cfg.GatewayKeyID)

	disabled := false
	cfg, err = svc.UpdateConfig(ctx, vendorID, UpdateInput{GatewayEnabled: &disabled})
	require.NoError(t, err)
	assert.False(t, cfg.HasGatewayCredentials(), "disabled gateway falls back to platform")

	stored, err := svc.GetConfig(ctx, vendorID)
	require.NoError(t, err)
	assert.False(t, stored.GatewayEnabled)
	assert.Equal(t, "vendor-secret", *stored.GatewayKeySecret)
}

func TestUpdateConfigValidatesCommission(t *testing.T) {
	svc := newTestService(t)
	over := decimal.NewFromInt(101)
	_, err := svc.UpdateConfig(context.Background(), uuid.New(), UpdateInput{CommissionPercent: &over})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	ok := decimal.RequireFromString("12.345")
	cfg, err := svc.UpdateConfig(context.Background(), uuid.New(), UpdateInput{CommissionPercent: &ok})
	require.NoError(t, err)
	assert.Equal(t, "12.35", cfg.CommissionPercent.StringFixed(2))
}

func TestGetConfigRejectsNilVendor(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.GetConfig(context.Background(), uuid.Nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
