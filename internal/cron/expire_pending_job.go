package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-settlement/internal/orders"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

const (
	defaultPendingPaymentTTL = 24 * time.Hour
	defaultExpiryBatchSize   = 100
	expiryReason             = "payment window expired"
)

type orderCanceller interface {
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	Cancel(ctx context.Context, input orders.CancelInput) (*models.Order, error)
}

// ExpirePendingJobParams configure the pending_payment expiry sweep.
type ExpirePendingJobParams struct {
	Logger    *logger.Logger
	Orders    orderCanceller
	TTL       time.Duration
	BatchSize int
}

// NewExpirePendingJob builds the sweep that cancels unpaid orders whose
// payment window has elapsed.
func NewExpirePendingJob(params ExpirePendingJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingPaymentTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatchSize
	}
	return &expirePendingJob{
		logg:   params.Logger,
		orders: params.Orders,
		ttl:    ttl,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type expirePendingJob struct {
	logg   *logger.Logger
	orders orderCanceller
	ttl    time.Duration
	batch  int
	now    func() time.Time
}

func (j *expirePendingJob) Name() string { return "expire-pending-payments" }

func (j *expirePendingJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	rows, err := j.orders.ListExpiredPending(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query expired orders: %w", err)
	}

	var errs []error
	expired, skipped := 0, 0
	for _, order := range rows {
		_, err := j.orders.Cancel(ctx, orders.CancelInput{
			OrderID: order.ID,
			Actor:   orders.SystemActor(),
			Reason:  expiryReason,
			Expiry:  true,
		})
		switch {
		case err == nil:
			expired++
		case pkgerrors.IsCode(err, pkgerrors.CodeInvalidState), pkgerrors.IsCode(err, pkgerrors.CodeNotCancellable):
			// paid or cancelled since the query ran
			skipped++
		default:
			errs = append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":    cutoff,
		"candidate": len(rows),
		"expired":   expired,
		"skipped":   skipped,
		"failed":    len(errs),
	})
	j.logg.Info(logCtx, "pending payment expiry complete")
	return multierr.Combine(errs...)
}
