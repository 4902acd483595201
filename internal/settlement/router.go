package settlement

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-settlement/pkg/config"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

// Directory looks up a vendor's settlement preferences.
type Directory interface {
	GetConfig(ctx context.Context, vendorID uuid.UUID) (*models.VendorSettlementConfig, error)
}

// Credentials are the gateway keys that govern one order. VendorID is nil for platform keys.
type Credentials struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	VendorID      *uuid.UUID
}

// IsPlatform reports whether the credentials are the platform defaults.
func (c *Credentials) IsPlatform() bool {
	return c != nil && c.VendorID == nil
}

// Router decides which gateway credentials settle an order.
type Router struct {
	directory Directory
	platform  config.GatewayConfig
	logg      *logger.Logger
}

func NewRouter(directory Directory, platform config.GatewayConfig, logg *logger.Logger) (*Router, error) {
	if directory == nil {
		return nil, fmt.Errorf("vendor directory required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Router{directory: directory, platform: platform, logg: logg}, nil
}

// ResolveCredentials walks the order's vendors in first-seen unit order and
// returns the first vendor with usable gateway keys, else the platform keys.
func (r *Router) ResolveCredentials(ctx context.Context, order *models.Order) (*Credentials, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	for _, vendorID := range order.VendorIDs() {
		cfg, err := r.directory.GetConfig(ctx, vendorID)
		if err != nil {
			return nil, err
		}
		if cfg.HasGatewayCredentials() {
			return vendorCredentials(vendorID, cfg), nil
		}
	}
	return r.platformCredentials()
}

// CredentialsForOrder returns the credentials persisted when the gateway order
// was created, falling back to resolution for orders that never reached the gateway.
func (r *Router) CredentialsForOrder(ctx context.Context, order *models.Order) (*Credentials, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if order.SettlementKeyID == nil || strings.TrimSpace(*order.SettlementKeyID) == "" {
		return r.ResolveCredentials(ctx, order)
	}
	keyID := strings.TrimSpace(*order.SettlementKeyID)

	var creds *Credentials
	if order.SettlementVendorID == nil {
		platform, err := r.platformCredentials()
		if err != nil {
			return nil, err
		}
		creds = platform
	} else {
		cfg, err := r.directory.GetConfig(ctx, *order.SettlementVendorID)
		if err != nil {
			return nil, err
		}
		if !cfg.HasGatewayCredentials() {
			r.logMismatch(ctx, order, "vendor gateway credentials no longer usable")
			return nil, pkgerrors.GatewayNotConfigured()
		}
		creds = vendorCredentials(*order.SettlementVendorID, cfg)
	}

	if creds.KeyID != keyID {
		r.logMismatch(ctx, order, "settlement key rotated since gateway order creation")
		return nil, pkgerrors.GatewayNotConfigured()
	}
	return creds, nil
}

// WebhookSecretFor returns the secret that signs deliveries for the route. An
// empty result means the channel has no secret configured.
func (r *Router) WebhookSecretFor(ctx context.Context, vendorID *uuid.UUID) (string, error) {
	if vendorID == nil {
		return strings.TrimSpace(r.platform.WebhookSecret), nil
	}
	cfg, err := r.directory.GetConfig(ctx, *vendorID)
	if err != nil {
		return "", err
	}
	if cfg.GatewayWebhookSecret == nil {
		return "", nil
	}
	return strings.TrimSpace(*cfg.GatewayWebhookSecret), nil
}

func (r *Router) platformCredentials() (*Credentials, error) {
	if !r.platform.HasPlatformCredentials() {
		return nil, pkgerrors.GatewayNotConfigured()
	}
	return &Credentials{
		KeyID:         strings.TrimSpace(r.platform.KeyID),
		KeySecret:     strings.TrimSpace(r.platform.KeySecret),
		WebhookSecret: strings.TrimSpace(r.platform.WebhookSecret),
	}, nil
}

func (r *Router) logMismatch(ctx context.Context, order *models.Order, msg string) {
	logCtx := r.logg.WithOrderID(ctx, order.ID.String())
	if order.SettlementVendorID != nil {
		logCtx = r.logg.WithVendorID(logCtx, order.SettlementVendorID.String())
	}
	r.logg.Warn(logCtx, msg)
}

func vendorCredentials(vendorID uuid.UUID, cfg *models.VendorSettlementConfig) *Credentials {
	id := vendorID
	creds := &Credentials{
		KeyID:     strings.TrimSpace(*cfg.GatewayKeyID),
		KeySecret: strings.TrimSpace(*cfg.GatewayKeySecret),
		VendorID:  &id,
	}
	if cfg.GatewayWebhookSecret != nil {
		creds.WebhookSecret = strings.TrimSpace(*cfg.GatewayWebhookSecret)
	}
	return creds
}
