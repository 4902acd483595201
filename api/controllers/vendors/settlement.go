package vendors

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-settlement/api/middleware"
	"github.com/angelmondragon/marketplace-settlement/api/responses"
	"github.com/angelmondragon/marketplace-settlement/api/validators"
	internalvendors "github.com/angelmondragon/marketplace-settlement/internal/vendors"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

// Commission is owned by the platform, so the vendor request has no
// commission field and unknown fields are rejected.
type updateSettlementRequest struct {
	Method               string  `json:"method" validate:"omitempty,oneof=gateway manual"`
	GatewayKeyID         *string `json:"gatewayKeyId" validate:"omitempty,max=128"`
	GatewayKeySecret     *string `json:"gatewayKeySecret" validate:"omitempty,max=256"`
	GatewayWebhookSecret *string `json:"gatewayWebhookSecret" validate:"omitempty,max=256"`
	GatewayEnabled       *bool   `json:"gatewayEnabled"`
	PayoutAccountName    *string `json:"payoutAccountName" validate:"omitempty,max=200"`
	PayoutAccountNumber  *string `json:"payoutAccountNumber" validate:"omitempty,max=64"`
	PayoutBankCode       *string `json:"payoutBankCode" validate:"omitempty,max=32"`
	PayoutNotes          *string `json:"payoutNotes" validate:"omitempty,max=1000"`
}

type adminUpdateSettlementRequest struct {
	updateSettlementRequest
	CommissionPercent *decimal.Decimal `json:"commissionPercent" validate:"omitempty,gte=0,lte=100"`
}

// Secrets are reported by presence only.
type settlementResponse struct {
	VendorID            uuid.UUID `json:"vendorId"`
	Method              string    `json:"method"`
	GatewayKeyID        *string   `json:"gatewayKeyId,omitempty"`
	HasKeySecret        bool      `json:"hasKeySecret"`
	HasWebhookSecret    bool      `json:"hasWebhookSecret"`
	GatewayEnabled      bool      `json:"gatewayEnabled"`
	PayoutAccountName   *string   `json:"payoutAccountName,omitempty"`
	PayoutAccountNumber *string   `json:"payoutAccountNumber,omitempty"`
	PayoutBankCode      *string   `json:"payoutBankCode,omitempty"`
	PayoutNotes         *string   `json:"payoutNotes,omitempty"`
	CommissionPercent   string    `json:"commissionPercent"`
}

func newSettlementResponse(cfg *models.VendorSettlementConfig) settlementResponse {
	return settlementResponse{
		VendorID:            cfg.VendorID,
		Method:              cfg.Method.String(),
		GatewayKeyID:        cfg.GatewayKeyID,
		HasKeySecret:        cfg.GatewayKeySecret != nil && *cfg.GatewayKeySecret != "",
		HasWebhookSecret:    cfg.GatewayWebhookSecret != nil && *cfg.GatewayWebhookSecret != "",
		GatewayEnabled:      cfg.GatewayEnabled,
		PayoutAccountName:   cfg.PayoutAccountName,
		PayoutAccountNumber: cfg.PayoutAccountNumber,
		PayoutBankCode:      cfg.PayoutBankCode,
		PayoutNotes:         cfg.PayoutNotes,
		CommissionPercent:   cfg.CommissionPercent.StringFixed(2),
	}
}

func (p updateSettlementRequest) toInput() (internalvendors.UpdateInput, error) {
	input := internalvendors.UpdateInput{
		GatewayKeyID:         p.GatewayKeyID,
		GatewayKeySecret:     p.GatewayKeySecret,
		GatewayWebhookSecret: p.GatewayWebhookSecret,
		GatewayEnabled:       p.GatewayEnabled,
		PayoutAccountName:    p.PayoutAccountName,
		PayoutAccountNumber:  p.PayoutAccountNumber,
		PayoutBankCode:       p.PayoutBankCode,
		PayoutNotes:          p.PayoutNotes,
	}
	if p.Method != "" {
		method, err := enums.ParseSettlementMethod(p.Method)
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid settlement method")
		}
		input.Method = method
	}
	return input, nil
}

// MySettlement returns the calling vendor's settlement config.
func MySettlement(svc internalvendors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "vendor service unavailable"))
			return
		}
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor context missing"))
			return
		}
		cfg, err := svc.GetConfig(r.Context(), actor.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSettlementResponse(cfg))
	}
}

// UpdateMySettlement lets a vendor manage its own keys and payout details.
func UpdateMySettlement(svc internalvendors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "vendor service unavailable"))
			return
		}
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor context missing"))
			return
		}

		var payload updateSettlementRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cfg, err := svc.UpdateConfig(r.Context(), actor.ID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSettlementResponse(cfg))
	}
}

// AdminUpdateSettlement updates any vendor's config, including commission.
func AdminUpdateSettlement(svc internalvendors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "vendor service unavailable"))
			return
		}
		vendorID, err := validators.ParseUUIDParam(r, "vendorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload adminUpdateSettlementRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.CommissionPercent = payload.CommissionPercent

		cfg, err := svc.UpdateConfig(r.Context(), vendorID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSettlementResponse(cfg))
	}
}
