package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
)

func TestOrderVendorIDsFirstSeenOrder(t *testing.T) {
	v1, v2 := uuid.New(), uuid.New()
	order := &Order{Units: []FulfillmentUnit{
		{VendorID: v2},
		{VendorID: v1},
		{VendorID: v2},
	}}

	got := order.VendorIDs()
	if len(got) != 2 || got[0] != v2 || got[1] != v1 {
		t.Fatalf("unexpected vendor order %v", got)
	}
	if !order.HasVendor(v1) || order.HasVendor(uuid.New()) {
		t.Fatalf("HasVendor mismatch")
	}
}

func TestHasGatewayCredentials(t *testing.T) {
	key, secret, blank := "rzp_v", "s3cret", "  "
	base := VendorSettlementConfig{
		Method:            enums.SettlementMethodGateway,
		GatewayKeyID:      &key,
		GatewayKeySecret:  &secret,
		GatewayEnabled:    true,
		CommissionPercent: decimal.NewFromInt(10),
	}
	if !base.HasGatewayCredentials() {
		t.Fatalf("expected credentials to be usable")
	}

	disabled := base
	disabled.GatewayEnabled = false
	manual := base
	manual.Method = enums.SettlementMethodManual
	missing := base
	missing.GatewayKeySecret = &blank

	for name, cfg := range map[string]VendorSettlementConfig{"disabled": disabled, "manual": manual, "blank secret": missing} {
		if cfg.HasGatewayCredentials() {
			t.Fatalf("%s config should not count as custom credentials", name)
		}
	}
}

func TestFulfillmentUnitReprice(t *testing.T) {
	unit := FulfillmentUnit{Quantity: 3, UnitPriceCents: 499}
	unit.Reprice()
	if unit.TotalPriceCents != 1497 {
		t.Fatalf("expected 1497, got %d", unit.TotalPriceCents)
	}
}
