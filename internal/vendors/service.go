package vendors

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

var maxCommission = decimal.NewFromInt(100)

// Service is the vendor settlement directory.
type Service interface {
	GetConfig(ctx context.Context, vendorID uuid.UUID) (*models.VendorSettlementConfig, error)
	UpdateConfig(ctx context.Context, vendorID uuid.UUID, input UpdateInput) (*models.VendorSettlementConfig, error)
}

// UpdateInput carries a vendor's own settlement preferences. Nil fields are left unchanged.
type UpdateInput struct {
	Method               enums.SettlementMethod
	GatewayKeyID         *string
	GatewayKeySecret     *string
	GatewayWebhookSecret *string
	GatewayEnabled       *bool
	PayoutAccountName    *string
	PayoutAccountNumber  *string
	PayoutBankCode       *string
	PayoutNotes          *string
	CommissionPercent    *decimal.Decimal
}

type ServiceParams struct {
	Repository        Repository
	Logger            *logger.Logger
	DefaultCommission decimal.Decimal
}

type service struct {
	repo              Repository
	logg              *logger.Logger
	defaultCommission decimal.Decimal
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("vendor settlement repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:              params.Repository,
		logg:              params.Logger,
		defaultCommission: params.DefaultCommission,
	}, nil
}

// GetConfig returns the vendor's config, creating the manual default on first access.
func (s *service) GetConfig(ctx context.Context, vendorID uuid.UUID) (*models.VendorSettlementConfig, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	cfg, err := s.repo.Find(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor settlement config")
	}
	if cfg != nil {
		return cfg, nil
	}

	def := &models.VendorSettlementConfig{
		VendorID:          vendorID,
		Method:            enums.SettlementMethodManual,
		GatewayEnabled:    true,
		CommissionPercent: s.defaultCommission,
	}
	if err := s.repo.CreateIfAbsent(ctx, def); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create vendor settlement config")
	}
	cfg, err = s.repo.Find(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload vendor settlement config")
	}
	if cfg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "vendor settlement config missing after create")
	}
	s.logg.Info(s.logg.WithVendorID(ctx, vendorID.String()), "vendor settlement config defaulted")
	return cfg, nil
}

func (s *service) UpdateConfig(ctx context.Context, vendorID uuid.UUID, input UpdateInput) (*models.VendorSettlementConfig, error) {
	cfg, err := s.GetConfig(ctx, vendorID)
	if err != nil {
		return nil, err
	}

	if input.Method != "" {
		if !input.Method.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid settlement method")
		}
		cfg.Method = input.Method
	}
	assignTrimmed(&cfg.GatewayKeyID, input.GatewayKeyID)
	assignTrimmed(&cfg.GatewayKeySecret, input.GatewayKeySecret)
	assignTrimmed(&cfg.GatewayWebhookSecret, input.GatewayWebhookSecret)
	if input.GatewayEnabled != nil {
		cfg.GatewayEnabled = *input.GatewayEnabled
	}
	assignTrimmed(&cfg.PayoutAccountName, input.PayoutAccountName)
	assignTrimmed(&cfg.PayoutAccountNumber, input.PayoutAccountNumber)
	assignTrimmed(&cfg.PayoutBankCode, input.PayoutBankCode)
	assignTrimmed(&cfg.PayoutNotes, input.PayoutNotes)
	if input.CommissionPercent != nil {
		c := *input.CommissionPercent
		if c.IsNegative() || c.GreaterThan(maxCommission) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "commission must be between 0 and 100").
				WithDetails(map[string]any{"commissionPercent": c.String()})
		}
		cfg.CommissionPercent = c.Round(2)
	}

	if cfg.Method == enums.SettlementMethodGateway && cfg.GatewayEnabled && !cfg.HasGatewayCredentials() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway settlement requires key id and key secret")
	}

	if err := s.repo.Save(ctx, cfg); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save vendor settlement config")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"vendor_id":       vendorID.String(),
		"method":          cfg.Method,
		"gateway_enabled": cfg.GatewayEnabled,
	})
	s.logg.Info(logCtx, "vendor settlement config updated")
	return cfg, nil
}

// assignTrimmed applies an optional update; an empty string clears the field.
func assignTrimmed(dst **string, value *string) {
	if value == nil {
		return
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		*dst = nil
		return
	}
	*dst = &trimmed
}
