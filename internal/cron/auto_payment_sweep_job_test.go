package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gigmarket/gigmarket-backend/internal/dbtest"
	"github.com/gigmarket/gigmarket-backend/internal/ledger"
	"github.com/gigmarket/gigmarket-backend/internal/orders"
	"github.com/gigmarket/gigmarket-backend/internal/settlement"
	"github.com/gigmarket/gigmarket-backend/pkg/db"
	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
	"github.com/gigmarket/gigmarket-backend/pkg/enums"
	"github.com/gigmarket/gigmarket-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticDue struct {
	orders []models.Order
	err    error
	limit  int
	calls  int
}

func (s *staticDue) ListDue(ctx context.Context, now time.Time, after *models.Order, limit int) ([]models.Order, error) {
	s.limit = limit
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	start := 0
	if after != nil {
		for i, o := range s.orders {
			if o.ID == after.ID {
				start = i + 1
			}
		}
	}
	end := start + limit
	if end > len(s.orders) {
		end = len(s.orders)
	}
	return s.orders[start:end], nil
}

type scriptedSettler struct {
	results map[uuid.UUID]error
	calls   []settlement.Request
}

func (s *scriptedSettler) Settle(ctx context.Context, req settlement.Request) (*settlement.Result, error) {
	s.calls = append(s.calls, req)
	if err := s.results[req.OrderID]; err != nil {
		return nil, err
	}
	return &settlement.Result{Outcome: settlement.OutcomeSettled}, nil
}

func newSweep(t *testing.T, lister dueOrderLister, settler orderSettler) *autoPaymentSweepJob {
	t.Helper()
	return newSweepWithBatch(t, lister, settler, 0)
}

func newSweepWithBatch(t *testing.T, lister dueOrderLister, settler orderSettler, batch int) *autoPaymentSweepJob {
	t.Helper()
	job, err := NewAutoPaymentSweepJob(AutoPaymentSweepJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Orders:    lister,
		Settler:   settler,
		BatchSize: batch,
	})
	require.NoError(t, err)
	return job.(*autoPaymentSweepJob)
}

func TestSweepContinuesPastFailures(t *testing.T) {
	failing := uuid.New()
	due := &staticDue{orders: []models.Order{{ID: uuid.New()}, {ID: failing}, {ID: uuid.New()}}}
	settler := &scriptedSettler{results: map[uuid.UUID]error{failing: errors.New("ledger down")}}
	job := newSweep(t, due, settler)

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), failing.String())
	assert.Len(t, settler.calls, 3)
	assert.Equal(t, defaultSweepBatchSize, due.limit)
	for _, call := range settler.calls {
		assert.Equal(t, enums.SettlementTriggerSweep, call.Trigger)
	}
}

func TestSweepPagesThroughEveryDueOrder(t *testing.T) {
	due := &staticDue{orders: []models.Order{{ID: uuid.New()}, {ID: uuid.New()}, {ID: uuid.New()}, {ID: uuid.New()}, {ID: uuid.New()}}}
	settler := &scriptedSettler{results: map[uuid.UUID]error{}}
	job := newSweepWithBatch(t, due, settler, 2)

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, settler.calls, 5)
	assert.Equal(t, 3, due.calls)
	assert.Equal(t, 2, due.limit)
}

func TestSweepReportsListFailure(t *testing.T) {
	job := newSweep(t, &staticDue{err: errors.New("db gone")}, &scriptedSettler{})
	assert.Error(t, job.Run(context.Background()))
}

func TestSweepSettlesOnlyElapsedDeadlines(t *testing.T) {
	conn := dbtest.Open(t)
	buyer := dbtest.CreateUser(t, conn, "buyer", "300.00")
	seller := dbtest.CreateUser(t, conn, "seller", "0")
	gig := dbtest.CreateGig(t, conn, seller, "100.00")
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	expired := dbtest.CreateOrder(t, conn, buyer, gig, enums.OrderStatusDelivered)
	dbtest.ArmOrder(t, conn, expired, now.Add(-25*time.Hour), now.Add(-time.Hour))
	pending := dbtest.CreateOrder(t, conn, buyer, gig, enums.OrderStatusDelivered)
	dbtest.ArmOrder(t, conn, pending, now.Add(-time.Hour), now.Add(23*time.Hour))
	unarmed := dbtest.CreateOrder(t, conn, buyer, gig, enums.OrderStatusDelivered)

	settler, err := settlement.NewService(settlement.ServiceParams{
		DB:     db.NewFromGorm(conn),
		Ledger: ledger.NewRepository(conn),
		Logger: logger.New(logger.Options{ServiceName: "test"}),
	})
	require.NoError(t, err)
	job := newSweep(t, orders.NewRepository(conn), settler)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, enums.OrderStatusCompleted, dbtest.ReloadOrder(t, conn, expired.ID).Status)
	assert.Equal(t, enums.OrderStatusDelivered, dbtest.ReloadOrder(t, conn, pending.ID).Status)
	assert.Equal(t, enums.OrderStatusDelivered, dbtest.ReloadOrder(t, conn, unarmed.ID).Status)
	assert.Len(t, dbtest.OrderTransactions(t, conn, expired.ID), 2)
	assert.True(t, dbtest.ReloadUser(t, conn, buyer.ID).Balance.Equal(decimal.NewFromInt(200)))
}

func TestSweepLeavesUnderfundedOrderForNextCycle(t *testing.T) {
	conn := dbtest.Open(t)
	buyer := dbtest.CreateUser(t, conn, "buyer", "10.00")
	seller := dbtest.CreateUser(t, conn, "seller", "0")
	gig := dbtest.CreateGig(t, conn, seller, "100.00")
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	order := dbtest.CreateOrder(t, conn, buyer, gig, enums.OrderStatusDelivered)
	dbtest.ArmOrder(t, conn, order, now.Add(-25*time.Hour), now.Add(-time.Hour))

	settler, err := settlement.NewService(settlement.ServiceParams{
		DB:     db.NewFromGorm(conn),
		Ledger: ledger.NewRepository(conn),
		Logger: logger.New(logger.Options{ServiceName: "test"}),
	})
	require.NoError(t, err)
	job := newSweep(t, orders.NewRepository(conn), settler)
	job.now = func() time.Time { return now }

	assert.Error(t, job.Run(context.Background()))
	reloaded := dbtest.ReloadOrder(t, conn, order.ID)
	assert.Equal(t, enums.OrderStatusDelivered, reloaded.Status)
	require.NotNil(t, reloaded.AutoPaymentDeadline)

	require.NoError(t, conn.Model(&models.User{}).Where("id = ?", buyer.ID).Update("balance", decimal.NewFromInt(150)).Error)
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, enums.OrderStatusCompleted, dbtest.ReloadOrder(t, conn, order.ID).Status)
}

func TestSweepReachesFundedOrderBehindUnderfundedOne(t *testing.T) {
	conn := dbtest.Open(t)
	poor := dbtest.CreateUser(t, conn, "poor", "0")
	rich := dbtest.CreateUser(t, conn, "rich", "500.00")
	seller := dbtest.CreateUser(t, conn, "seller", "0")
	gig := dbtest.CreateGig(t, conn, seller, "100.00")
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	stuck := dbtest.CreateOrder(t, conn, poor, gig, enums.OrderStatusDelivered)
	dbtest.ArmOrder(t, conn, stuck, now.Add(-50*time.Hour), now.Add(-26*time.Hour))
	funded := dbtest.CreateOrder(t, conn, rich, gig, enums.OrderStatusDelivered)
	dbtest.ArmOrder(t, conn, funded, now.Add(-25*time.Hour), now.Add(-time.Hour))

	settler, err := settlement.NewService(settlement.ServiceParams{
		DB:     db.NewFromGorm(conn),
		Ledger: ledger.NewRepository(conn),
		Logger: logger.New(logger.Options{ServiceName: "test"}),
	})
	require.NoError(t, err)
	job := newSweepWithBatch(t, orders.NewRepository(conn), settler, 1)
	job.now = func() time.Time { return now }

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), stuck.ID.String())

	assert.Equal(t, enums.OrderStatusDelivered, dbtest.ReloadOrder(t, conn, stuck.ID).Status)
	assert.Equal(t, enums.OrderStatusCompleted, dbtest.ReloadOrder(t, conn, funded.ID).Status)
	assert.Len(t, dbtest.OrderTransactions(t, conn, funded.ID), 2)
}
