// Package settlement moves an order's price from buyer to seller and flips the
// order to completed. Manual pay, deferred timers and the periodic sweep all
// settle through Service.Settle.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gigmarket/gigmarket-backend/internal/ledger"
	"github.com/gigmarket/gigmarket-backend/internal/notifications"
	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
	"github.com/gigmarket/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/gigmarket/gigmarket-backend/pkg/errors"
	"github.com/gigmarket/gigmarket-backend/pkg/logger"
	"github.com/gigmarket/gigmarket-backend/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Outcome describes what a settlement attempt did.
type Outcome string

const (
	// OutcomeSettled means this call moved the funds and completed the order.
	OutcomeSettled Outcome = "settled"
	// OutcomeAlreadySettled means another caller completed the order first.
	OutcomeAlreadySettled Outcome = "already_settled"
	// OutcomeNotDelivered means the order is not awaiting payment.
	OutcomeNotDelivered Outcome = "not_delivered"
	// OutcomeNotDue means an automatic trigger found no elapsed deadline.
	OutcomeNotDue Outcome = "not_due"
)

// Request identifies the order and what triggered the attempt.
type Request struct {
	OrderID uuid.UUID
	Trigger enums.SettlementTrigger
	// Now overrides the clock; zero uses the service clock.
	Now time.Time
}

// Result carries the outcome and the order as read inside the transaction.
type Result struct {
	Outcome Outcome
	Order   *models.Order
}

// TimerCanceler drops an in-memory deferred check for an order.
type TimerCanceler interface {
	Cancel(orderID uuid.UUID)
}

type txRunner interface {
	WithRetry(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams wires the settlement service.
type ServiceParams struct {
	DB       txRunner
	Ledger   ledger.Repository
	Notifier notifications.Notifier
	Timers   TimerCanceler
	Metrics  *metrics.SettlementMetrics
	Logger   *logger.Logger
}

// Service performs guarded, at-most-once settlement.
type Service struct {
	db       txRunner
	ledger   ledger.Repository
	notifier notifications.Notifier
	timers   TimerCanceler
	metrics  *metrics.SettlementMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds a settlement service. Timers, Notifier and Metrics are optional.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		db:       params.DB,
		ledger:   params.Ledger,
		notifier: params.Notifier,
		timers:   params.Timers,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Settle runs the guarded settlement for one order. Losing a race to another
// settler is reported as OutcomeAlreadySettled with a nil error. Any error
// leaves the order and balances untouched.
func (s *Service) Settle(ctx context.Context, req Request) (*Result, error) {
	if req.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	trigger := req.Trigger
	if trigger == "" {
		trigger = enums.SettlementTriggerManual
	}
	now := req.Now
	if now.IsZero() {
		now = s.now()
	}
	now = now.UTC().Truncate(time.Microsecond)

	ctx = s.logg.WithOrderID(ctx, req.OrderID.String())
	ctx = s.logg.WithField(ctx, "trigger", string(trigger))

	var result *Result
	err := s.db.WithRetry(ctx, func(tx *gorm.DB) error {
		res, err := s.settleTx(ctx, tx, req.OrderID, trigger, now)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		s.metrics.ObserveAttempt(string(trigger), "error")
		if pkgerrors.Is(err, pkgerrors.CodeInsufficientFunds) {
			s.logg.Warn(ctx, "settlement blocked by insufficient buyer balance")
		} else if !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			s.logg.Error(ctx, "settlement failed", err)
		}
		return nil, err
	}

	s.metrics.ObserveAttempt(string(trigger), string(result.Outcome))
	if result.Outcome != OutcomeNotDue && s.timers != nil {
		s.timers.Cancel(req.OrderID)
	}
	if result.Outcome == OutcomeSettled {
		s.logg.Info(ctx, "order settled")
		s.notify(ctx, result.Order, trigger)
	}
	return result, nil
}

func (s *Service) settleTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, trigger enums.SettlementTrigger, now time.Time) (*Result, error) {
	order, err := loadOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	switch {
	case order.Status == enums.OrderStatusCompleted:
		return &Result{Outcome: OutcomeAlreadySettled, Order: order}, nil
	case order.Status != enums.OrderStatusDelivered:
		return &Result{Outcome: OutcomeNotDelivered, Order: order}, nil
	case trigger.IsAutomatic() && !order.AutoPaymentDue(now):
		return &Result{Outcome: OutcomeNotDue, Order: order}, nil
	}

	flip := tx.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, enums.OrderStatusDelivered).
		Updates(map[string]any{
			"status":                enums.OrderStatusCompleted,
			"completed_at":          now,
			"auto_payment_deadline": nil,
			"updated_at":            now,
		})
	if flip.Error != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, flip.Error, "complete order")
	}
	if flip.RowsAffected == 0 {
		current, err := loadOrder(ctx, tx, orderID)
		if err != nil {
			return nil, err
		}
		if current.Status == enums.OrderStatusCompleted {
			return &Result{Outcome: OutcomeAlreadySettled, Order: current}, nil
		}
		return &Result{Outcome: OutcomeNotDelivered, Order: current}, nil
	}

	if err := s.transfer(ctx, tx, order, now); err != nil {
		return nil, err
	}

	settled, err := loadOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	return &Result{Outcome: OutcomeSettled, Order: settled}, nil
}

func (s *Service) transfer(ctx context.Context, tx *gorm.DB, order *models.Order, now time.Time) error {
	repo := s.ledger.WithTx(tx)
	price := order.PriceAtPurchase

	ok, err := repo.Debit(ctx, order.ClientID, price)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "buyer not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit buyer")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "buyer balance does not cover the order price").
			WithDetails(map[string]string{"price": price.StringFixed(2)})
	}
	if err := repo.Credit(ctx, order.GigOwnerID, price); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "seller not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit seller")
	}

	orderID := order.ID
	entries := []*models.Transaction{
		{
			UserID:      order.ClientID,
			OrderID:     &orderID,
			Amount:      price.Neg(),
			Type:        enums.TransactionTypePayment,
			Description: fmt.Sprintf("Payment for order %s", orderID),
			CreatedAt:   now,
		},
		{
			UserID:      order.GigOwnerID,
			OrderID:     &orderID,
			Amount:      price,
			Type:        enums.TransactionTypeReceivedPayment,
			Description: fmt.Sprintf("Payment received for order %s", orderID),
			CreatedAt:   now,
		},
	}
	for _, entry := range entries {
		if err := repo.Create(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record settlement entry")
		}
	}
	return nil
}

func (s *Service) notify(ctx context.Context, order *models.Order, trigger enums.SettlementTrigger) {
	if s.notifier == nil || order == nil {
		return
	}
	amount := order.PriceAtPurchase.StringFixed(2)
	buyerMessage := fmt.Sprintf("Payment of %s was released to the seller.", amount)
	if trigger.IsAutomatic() {
		buyerMessage = fmt.Sprintf("The response window closed and payment of %s was released automatically.", amount)
	}
	s.notifier.Notify(ctx,
		notifications.Notice{
			UserID:  order.ClientID,
			OrderID: order.ID,
			Type:    enums.NotificationTypeOrderCompleted,
			Title:   "Order completed",
			Message: buyerMessage,
		},
		notifications.Notice{
			UserID:  order.GigOwnerID,
			OrderID: order.ID,
			Type:    enums.NotificationTypePaymentReceived,
			Title:   "Payment received",
			Message: fmt.Sprintf("You received %s for your delivery.", amount),
		},
	)
}

func loadOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := tx.WithContext(ctx).First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return &order, nil
}
