package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
)

var hundred = decimal.NewFromInt(100)

// Split divides a unit total into the platform commission and the vendor payout.
// The commission rounds half away from zero to the nearest cent.
func Split(totalCents int64, percent decimal.Decimal) (commission, payout int64) {
	if totalCents <= 0 || !percent.IsPositive() {
		return 0, totalCents
	}
	if percent.GreaterThan(hundred) {
		percent = hundred
	}
	commission = decimal.NewFromInt(totalCents).Mul(percent).Div(hundred).Round(0).IntPart()
	return commission, totalCents - commission
}

// commissionRates loads the commission percentage of every vendor on the order.
func (s *service) commissionRates(ctx context.Context, order *models.Order) (map[uuid.UUID]decimal.Decimal, error) {
	rates := make(map[uuid.UUID]decimal.Decimal, len(order.Units))
	for _, vendorID := range order.VendorIDs() {
		cfg, err := s.directory.GetConfig(ctx, vendorID)
		if err != nil {
			return nil, err
		}
		rates[vendorID] = cfg.CommissionPercent
	}
	return rates, nil
}

func (s *service) rateFor(rates map[uuid.UUID]decimal.Decimal, vendorID uuid.UUID) decimal.Decimal {
	if rate, ok := rates[vendorID]; ok {
		return rate
	}
	return s.defaultCommission
}
