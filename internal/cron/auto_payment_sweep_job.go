package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/gigmarket/gigmarket-backend/internal/settlement"
	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
	"github.com/gigmarket/gigmarket-backend/pkg/enums"
	"github.com/gigmarket/gigmarket-backend/pkg/logger"
	"go.uber.org/multierr"
)

const defaultSweepBatchSize = 100

type dueOrderLister interface {
	ListDue(ctx context.Context, now time.Time, after *models.Order, limit int) ([]models.Order, error)
}

type orderSettler interface {
	Settle(ctx context.Context, req settlement.Request) (*settlement.Result, error)
}

type AutoPaymentSweepJobParams struct {
	Logger    *logger.Logger
	Orders    dueOrderLister
	Settler   orderSettler
	BatchSize int
	// Clock overrides time.Now.
	Clock func() time.Time
}

// NewAutoPaymentSweepJob builds the job that settles delivered orders whose
// auto-payment deadline has elapsed. It is the durable path; in-process timers
// only shorten the delay.
func NewAutoPaymentSweepJob(params AutoPaymentSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Settler == nil {
		return nil, fmt.Errorf("settlement service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &autoPaymentSweepJob{
		logg:    params.Logger,
		orders:  params.Orders,
		settler: params.Settler,
		batch:   batch,
		now:     clock,
	}, nil
}

type autoPaymentSweepJob struct {
	logg    *logger.Logger
	orders  dueOrderLister
	settler orderSettler
	batch   int
	now     func() time.Time
}

func (j *autoPaymentSweepJob) Name() string { return "auto_payment_sweep" }

func (j *autoPaymentSweepJob) Run(ctx context.Context) error {
	now := j.now().UTC()

	var (
		errs    []error
		due     int
		settled int
		skipped int
		after   *models.Order
	)
	// Failed orders keep their deadline; page past them by (deadline, id).
	for {
		page, err := j.orders.ListDue(ctx, now, after, j.batch)
		if err != nil {
			errs = append(errs, fmt.Errorf("list due orders: %w", err))
			break
		}
		due += len(page)
		for _, order := range page {
			if ctx.Err() != nil {
				break
			}
			res, err := j.settler.Settle(ctx, settlement.Request{
				OrderID: order.ID,
				Trigger: enums.SettlementTriggerSweep,
				Now:     now,
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("settle order %s: %w", order.ID, err))
				continue
			}
			if res.Outcome == settlement.OutcomeSettled {
				settled++
			} else {
				skipped++
			}
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if len(page) < j.batch {
			break
		}
		last := page[len(page)-1]
		after = &last
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"due":     due,
		"settled": settled,
		"skipped": skipped,
		"failed":  len(errs),
	})
	if due > 0 {
		j.logg.Info(logCtx, "auto-payment sweep complete")
	} else {
		j.logg.Debug(logCtx, "auto-payment sweep found nothing due")
	}
	return multierr.Combine(errs...)
}
