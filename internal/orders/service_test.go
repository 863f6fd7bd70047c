package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gigmarket/gigmarket-backend/internal/dbtest"
	"github.com/gigmarket/gigmarket-backend/internal/gigs"
	"github.com/gigmarket/gigmarket-backend/internal/ledger"
	"github.com/gigmarket/gigmarket-backend/internal/notifications"
	"github.com/gigmarket/gigmarket-backend/internal/settlement"
	"github.com/gigmarket/gigmarket-backend/internal/users"
	"github.com/gigmarket/gigmarket-backend/pkg/db"
	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
	"github.com/gigmarket/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/gigmarket/gigmarket-backend/pkg/errors"
	"github.com/gigmarket/gigmarket-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeTimers struct {
	mu        sync.Mutex
	scheduled map[uuid.UUID]time.Time
	canceled  []uuid.UUID
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{scheduled: map[uuid.UUID]time.Time{}}
}

func (f *fakeTimers) Schedule(orderID uuid.UUID, deadline time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled[orderID] = deadline
}

func (f *fakeTimers) Cancel(orderID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.scheduled, orderID)
	f.canceled = append(f.canceled, orderID)
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []notifications.Notice
}

func (f *fakeNotifier) Notify(ctx context.Context, notices ...notifications.Notice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, notices...)
}

func (f *fakeNotifier) last() notifications.Notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notices[len(f.notices)-1]
}

type harness struct {
	conn     *gorm.DB
	svc      *service
	settler  *settlement.Service
	timers   *fakeTimers
	notifier *fakeNotifier
	buyer    *models.User
	seller   *models.User
	outsider *models.User
	gig      *models.Gig
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test"})
	h := &harness{
		conn:     conn,
		timers:   newFakeTimers(),
		notifier: &fakeNotifier{},
		buyer:    dbtest.CreateUser(t, conn, "buyer", "500.00"),
		seller:   dbtest.CreateUser(t, conn, "seller", "0"),
		outsider: dbtest.CreateUser(t, conn, "outsider", "0"),
		now:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	h.gig = dbtest.CreateGig(t, conn, h.seller, "100.00")

	settler, err := settlement.NewService(settlement.ServiceParams{
		DB:       db.NewFromGorm(conn),
		Ledger:   ledger.NewRepository(conn),
		Notifier: h.notifier,
		Timers:   h.timers,
		Logger:   logg,
	})
	require.NoError(t, err)
	h.settler = settler

	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(conn),
		Gigs:     gigs.NewRepository(conn),
		Users:    users.NewRepository(conn),
		Settler:  settler,
		Timers:   h.timers,
		Notifier: h.notifier,
		Logger:   logg,
	})
	require.NoError(t, err)
	h.svc = svc.(*service)
	h.svc.now = func() time.Time { return h.now }
	return h
}

func (h *harness) order(t *testing.T, status enums.OrderStatus) *models.Order {
	t.Helper()
	return dbtest.CreateOrder(t, h.conn, h.buyer, h.gig, status)
}

func (h *harness) addFile(t *testing.T, order *models.Order, name string) {
	t.Helper()
	file := &models.DeliveryFile{
		OrderID:      order.ID,
		OriginalName: name,
		StoragePath:  "orders/" + order.ID.String() + "/" + uuid.NewString() + "/" + name,
		FileSize:     1024,
		FileType:     "image/png",
		UploadedBy:   order.GigOwnerID,
	}
	require.NoError(t, h.conn.Create(file).Error)
}

func (h *harness) status(t *testing.T, order *models.Order) enums.OrderStatus {
	t.Helper()
	return dbtest.ReloadOrder(t, h.conn, order.ID).Status
}

func TestCreateOrderCopiesGigTerms(t *testing.T) {
	h := newHarness(t)

	order, err := h.svc.Create(context.Background(), h.buyer.ID, CreateOrderInput{GigID: h.gig.ID, Requirement: " logo for a bakery "})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, h.seller.ID, order.GigOwnerID)
	assert.True(t, order.PriceAtPurchase.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 24, order.ResponseTimeHours)
	assert.Equal(t, "logo for a bakery", order.Requirement)

	assert.Equal(t, h.seller.ID, h.notifier.last().UserID)
	assert.Equal(t, enums.NotificationTypeOrderCreated, h.notifier.last().Type)

	assert.True(t, dbtest.ReloadUser(t, h.conn, h.seller.ID).Balance.IsZero())
}

func TestCreateOrderValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, h.seller.ID, CreateOrderInput{GigID: h.gig.ID})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "own gig: %v", err)

	_, err = h.svc.Create(ctx, h.buyer.ID, CreateOrderInput{GigID: uuid.New()})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound), "missing gig: %v", err)

	_, err = h.svc.Create(ctx, uuid.New(), CreateOrderInput{GigID: h.gig.ID})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound), "missing buyer: %v", err)

	require.NoError(t, h.conn.Model(&models.Gig{}).Where("id = ?", h.gig.ID).Update("is_active", false).Error)
	_, err = h.svc.Create(ctx, h.buyer.ID, CreateOrderInput{GigID: h.gig.ID})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodePrecondition), "inactive gig: %v", err)
}

func TestStartSetsDeliveryDeadline(t *testing.T) {
	h := newHarness(t)
	order := h.order(t, enums.OrderStatusPending)

	updated, err := h.svc.UpdateStatus(context.Background(), h.seller.ID, order.ID, "in_progress")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusInProgress, updated.Status)
	require.NotNil(t, updated.DeliveryDeadline)
	assert.True(t, updated.DeliveryDeadline.Equal(h.now.AddDate(0, 0, h.gig.DeliveryDays)))
	assert.Equal(t, enums.NotificationTypeOrderStarted, h.notifier.last().Type)
	assert.Equal(t, h.buyer.ID, h.notifier.last().UserID)
}

func TestTransitionsOutsideTableLeaveStatusUnchanged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			for _, actor := range []*models.User{h.buyer, h.seller} {
				role := enums.ActorRoleBuyer
				if actor == h.seller {
					role = enums.ActorRoleSeller
				}
				if CanTransition(from, to, role) {
					continue
				}
				order := h.order(t, from)
				_, err := h.svc.UpdateStatus(ctx, actor.ID, order.ID, string(to))
				require.Error(t, err, "%s->%s by %s", from, to, role)
				if _, isEdge := findEdge(from, to); !isEdge {
					assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidTransition), "%s->%s by %s: %v", from, to, role, err)
				}
				assert.Equal(t, from, h.status(t, order))
			}
		}
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	h := newHarness(t)
	order := h.order(t, enums.OrderStatusPending)

	_, err := h.svc.UpdateStatus(context.Background(), h.seller.ID, order.ID, "shipped")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidStatus))
	assert.Equal(t, enums.OrderStatusPending, h.status(t, order))
}

func TestMarkDeliveredRequiresFiles(t *testing.T) {
	h := newHarness(t)
	order := h.order(t, enums.OrderStatusInProgress)
	ctx := context.Background()

	_, err := h.svc.MarkDelivered(ctx, h.seller.ID, order.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodePrecondition))
	assert.Equal(t, enums.OrderStatusInProgress, h.status(t, order))

	h.addFile(t, order, "logo.png")
	updated, err := h.svc.MarkDelivered(ctx, h.seller.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, updated.Status)
	assert.Nil(t, updated.AutoPaymentDeadline, "delivery alone must not arm the timer")
	assert.Equal(t, enums.NotificationTypeOrderDelivered, h.notifier.last().Type)
}

func TestThirdPartyIsForbiddenEverywhere(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.order(t, enums.OrderStatusDelivered)
	h.addFile(t, order, "logo.png")

	calls := map[string]func() error{
		"update status": func() error {
			_, err := h.svc.UpdateStatus(ctx, h.outsider.ID, order.ID, "revision_requested")
			return err
		},
		"mark delivered": func() error { _, err := h.svc.MarkDelivered(ctx, h.outsider.ID, order.ID); return err },
		"request revision": func() error {
			_, err := h.svc.RequestRevision(ctx, h.outsider.ID, order.ID)
			return err
		},
		"handle revision": func() error {
			_, err := h.svc.HandleRevision(ctx, h.outsider.ID, order.ID, RevisionAccept)
			return err
		},
		"pay":      func() error { _, err := h.svc.Pay(ctx, h.outsider.ID, order.ID); return err },
		"workflow": func() error { _, err := h.svc.Workflow(ctx, h.outsider.ID, order.ID); return err },
		"get":      func() error { _, err := h.svc.Get(ctx, h.outsider.ID, order.ID); return err },
	}
	for name, call := range calls {
		err := call()
		assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden), "%s: %v", name, err)
	}

	reloaded := dbtest.ReloadOrder(t, h.conn, order.ID)
	assert.Equal(t, enums.OrderStatusDelivered, reloaded.Status)
	assert.Empty(t, dbtest.OrderTransactions(t, h.conn, order.ID))
}

func TestArmAutoPaymentOnlyOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.order(t, enums.OrderStatusDelivered)

	armed, ok, err := h.svc.ArmAutoPayment(ctx, order)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, armed.DownloadStartTime)
	require.NotNil(t, armed.AutoPaymentDeadline)
	assert.True(t, armed.DownloadStartTime.Equal(h.now))
	assert.True(t, armed.AutoPaymentDeadline.Equal(h.now.Add(24*time.Hour)))
	assert.Equal(t, h.now.Add(24*time.Hour), h.timers.scheduled[order.ID])

	h.now = h.now.Add(2 * time.Hour)
	stale := *order
	again, ok, err := h.svc.ArmAutoPayment(ctx, &stale)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, again.DownloadStartTime.Equal(*armed.DownloadStartTime))
	assert.True(t, again.AutoPaymentDeadline.Equal(*armed.AutoPaymentDeadline))
}

func TestArmAutoPaymentIgnoresOtherStatuses(t *testing.T) {
	h := newHarness(t)
	order := h.order(t, enums.OrderStatusInProgress)

	_, ok, err := h.svc.ArmAutoPayment(context.Background(), order)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, dbtest.ReloadOrder(t, h.conn, order.ID).AutoPaymentDeadline)
}

func TestRequestRevisionCancelsTimerAndSweepIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.order(t, enums.OrderStatusDelivered)
	h.addFile(t, order, "logo.png")

	_, ok, err := h.svc.ArmAutoPayment(ctx, order)
	require.NoError(t, err)
	require.True(t, ok)

	updated, err := h.svc.RequestRevision(ctx, h.buyer.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusRevisionRequested, updated.Status)
	assert.Nil(t, updated.AutoPaymentDeadline)
	assert.Nil(t, updated.DownloadStartTime)
	assert.Contains(t, h.timers.canceled, order.ID)
	assert.NotContains(t, h.timers.scheduled, order.ID)

	res, err := h.settler.Settle(ctx, settlement.Request{OrderID: order.ID, Trigger: enums.SettlementTriggerSweep, Now: h.now.Add(48 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, settlement.OutcomeNotDelivered, res.Outcome)
	assert.Equal(t, enums.OrderStatusRevisionRequested, h.status(t, order))
	assert.Empty(t, dbtest.OrderTransactions(t, h.conn, order.ID))
}

func TestRevisionCycleAllowsFreshArm(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.order(t, enums.OrderStatusDelivered)
	h.addFile(t, order, "logo.png")

	_, _, err := h.svc.ArmAutoPayment(ctx, order)
	require.NoError(t, err)
	_, err = h.svc.RequestRevision(ctx, h.buyer.ID, order.ID)
	require.NoError(t, err)
	_, err = h.svc.HandleRevision(ctx, h.seller.ID, order.ID, RevisionAccept)
	require.NoError(t, err)
	assert.Equal(t, enums.NotificationTypeRevisionAccepted, h.notifier.last().Type)
	redelivered, err := h.svc.MarkDelivered(ctx, h.seller.ID, order.ID)
	require.NoError(t, err)

	h.now = h.now.Add(5 * time.Hour)
	rearmed, ok, err := h.svc.ArmAutoPayment(ctx, redelivered)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, rearmed.AutoPaymentDeadline.Equal(h.now.Add(24*time.Hour)))
}

func TestHandleRevisionDecline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.order(t, enums.OrderStatusRevisionRequested)

	_, err := h.svc.HandleRevision(ctx, h.seller.ID, order.ID, RevisionDecline)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodePrecondition), "decline without files: %v", err)

	h.addFile(t, order, "logo.png")
	updated, err := h.svc.HandleRevision(ctx, h.seller.ID, order.ID, RevisionDecline)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, updated.Status)
	assert.Equal(t, enums.NotificationTypeRevisionDeclined, h.notifier.last().Type)

	_, err = h.svc.HandleRevision(ctx, h.seller.ID, order.ID, RevisionAccept)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidTransition))

	_, err = h.svc.HandleRevision(ctx, h.seller.ID, order.ID, "maybe")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	other := h.order(t, enums.OrderStatusRevisionRequested)
	_, err = h.svc.HandleRevision(ctx, h.buyer.ID, other.ID, RevisionAccept)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))
}

func TestPayTwiceSettlesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.order(t, enums.OrderStatusDelivered)

	first, err := h.svc.Pay(ctx, h.buyer.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, first.Status)
	require.NotNil(t, first.CompletedAt)

	second, err := h.svc.Pay(ctx, h.buyer.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, second.Status)
	assert.True(t, second.CompletedAt.Equal(*first.CompletedAt))

	assert.Len(t, dbtest.OrderTransactions(t, h.conn, order.ID), 2)
	assert.True(t, dbtest.ReloadUser(t, h.conn, h.buyer.ID).Balance.Equal(decimal.NewFromInt(400)))
}

func TestConcurrentPayCallsSettleOnce(t *testing.T) {
	h := newHarness(t)
	order := h.order(t, enums.OrderStatusDelivered)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := h.svc.Pay(context.Background(), h.buyer.ID, order.ID)
			if err != nil {
				t.Errorf("pay: %v", err)
				return
			}
			if got.Status != enums.OrderStatusCompleted {
				t.Errorf("expected completed, got %s", got.Status)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, dbtest.OrderTransactions(t, h.conn, order.ID), 2)
	assert.True(t, dbtest.ReloadUser(t, h.conn, h.buyer.ID).Balance.Equal(decimal.NewFromInt(400)))
}

func TestPayPreconditions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pending := h.order(t, enums.OrderStatusPending)
	_, err := h.svc.Pay(ctx, h.buyer.ID, pending.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodePrecondition))

	delivered := h.order(t, enums.OrderStatusDelivered)
	_, err = h.svc.Pay(ctx, h.seller.ID, delivered.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	_, err = h.svc.Pay(ctx, h.buyer.ID, uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestPayInsufficientFundsKeepsOrderDelivered(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.conn.Model(&models.User{}).Where("id = ?", h.buyer.ID).Update("balance", decimal.NewFromInt(20)).Error)
	order := h.order(t, enums.OrderStatusDelivered)

	_, err := h.svc.Pay(context.Background(), h.buyer.ID, order.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientFunds))
	assert.Equal(t, enums.OrderStatusDelivered, h.status(t, order))
}

func TestUpdateStatusCompletedSettles(t *testing.T) {
	h := newHarness(t)
	order := h.order(t, enums.OrderStatusDelivered)

	updated, err := h.svc.UpdateStatus(context.Background(), h.buyer.ID, order.ID, "completed")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, updated.Status)
	assert.Len(t, dbtest.OrderTransactions(t, h.conn, order.ID), 2)
}

func TestCancelByEitherParty(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	byBuyer := h.order(t, enums.OrderStatusPending)
	updated, err := h.svc.UpdateStatus(ctx, h.buyer.ID, byBuyer.ID, "cancelled")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, updated.Status)
	assert.Equal(t, h.seller.ID, h.notifier.last().UserID)

	bySeller := h.order(t, enums.OrderStatusPending)
	_, err = h.svc.UpdateStatus(ctx, h.seller.ID, bySeller.ID, "cancelled")
	require.NoError(t, err)
	assert.Equal(t, h.buyer.ID, h.notifier.last().UserID)
}

func TestWorkflowReportsWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.order(t, enums.OrderStatusDelivered)
	h.addFile(t, order, "logo.png")
	_, _, err := h.svc.ArmAutoPayment(ctx, order)
	require.NoError(t, err)

	h.now = h.now.Add(4 * time.Hour)
	wf, err := h.svc.Workflow(ctx, h.buyer.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ActorRoleBuyer, wf.Role)
	assert.Equal(t, int64(1), wf.FileCount)
	assert.Contains(t, wf.NextActions, ActionPay)
	require.NotNil(t, wf.AutoPayment)
	assert.Equal(t, int64(20*3600), wf.AutoPayment.SecondsRemaining)

	sellerView, err := h.svc.Workflow(ctx, h.seller.ID, order.ID)
	require.NoError(t, err)
	assert.NotContains(t, sellerView.NextActions, ActionPay)
}

func TestListByRole(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.order(t, enums.OrderStatusPending)
	h.order(t, enums.OrderStatusDelivered)

	otherGig := dbtest.CreateGig(t, h.conn, h.buyer, "30")
	dbtest.CreateOrder(t, h.conn, h.seller, otherGig, enums.OrderStatusPending)

	asBuyer, err := h.svc.List(ctx, h.buyer.ID, ListOrdersInput{Role: "buyer"})
	require.NoError(t, err)
	assert.Len(t, asBuyer.Orders, 2)

	asSeller, err := h.svc.List(ctx, h.buyer.ID, ListOrdersInput{Role: "seller"})
	require.NoError(t, err)
	assert.Len(t, asSeller.Orders, 1)

	all, err := h.svc.List(ctx, h.buyer.ID, ListOrdersInput{})
	require.NoError(t, err)
	assert.Len(t, all.Orders, 3)

	delivered, err := h.svc.List(ctx, h.buyer.ID, ListOrdersInput{Status: "delivered"})
	require.NoError(t, err)
	assert.Len(t, delivered.Orders, 1)

	_, err = h.svc.List(ctx, h.buyer.ID, ListOrdersInput{Role: "admin"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	_, err = h.svc.List(ctx, h.buyer.ID, ListOrdersInput{Status: "lost"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidStatus))
}
