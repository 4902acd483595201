package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
)

// VendorSettlementConfig stores how a vendor is paid out.
type VendorSettlementConfig struct {
	VendorID             uuid.UUID              `gorm:"column:vendor_id;type:uuid;primaryKey"`
	Method               enums.SettlementMethod `gorm:"column:method;type:settlement_method;not null"`
	GatewayKeyID         *string                `gorm:"column:gateway_key_id"`
	GatewayKeySecret     *string                `gorm:"column:gateway_key_secret"`
	GatewayWebhookSecret *string                `gorm:"column:gateway_webhook_secret"`
	GatewayEnabled       bool                   `gorm:"column:gateway_enabled;not null;default:true"`

	PayoutAccountName   *string `gorm:"column:payout_account_name"`
	PayoutAccountNumber *string `gorm:"column:payout_account_number"`
	PayoutBankCode      *string `gorm:"column:payout_bank_code"`
	PayoutNotes         *string `gorm:"column:payout_notes"`

	CommissionPercent decimal.Decimal `gorm:"column:commission_percent;type:numeric(5,2);not null"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (VendorSettlementConfig) TableName() string { return "vendor_settlement_configs" }

// HasGatewayCredentials reports whether the vendor's own gateway keys are usable.
func (c *VendorSettlementConfig) HasGatewayCredentials() bool {
	if c == nil {
		return false
	}
	return c.Method == enums.SettlementMethodGateway &&
		c.GatewayEnabled &&
		nonEmpty(c.GatewayKeyID) &&
		nonEmpty(c.GatewayKeySecret)
}

func nonEmpty(v *string) bool {
	return v != nil && strings.TrimSpace(*v) != ""
}
