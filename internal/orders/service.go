package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gigmarket/gigmarket-backend/internal/notifications"
	"github.com/gigmarket/gigmarket-backend/internal/settlement"
	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
	"github.com/gigmarket/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/gigmarket/gigmarket-backend/pkg/errors"
	"github.com/gigmarket/gigmarket-backend/pkg/logger"
	"github.com/gigmarket/gigmarket-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultResponseTimeHours = 24

// Service drives orders through the state machine on behalf of a principal.
type Service interface {
	Create(ctx context.Context, buyerID uuid.UUID, input CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, userID uuid.UUID, input ListOrdersInput) (*OrderList, error)
	Party(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, enums.ActorRole, error)
	UpdateStatus(ctx context.Context, userID, orderID uuid.UUID, status string) (*models.Order, error)
	MarkDelivered(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	RequestRevision(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	HandleRevision(ctx context.Context, userID, orderID uuid.UUID, action RevisionAction) (*models.Order, error)
	Pay(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	Workflow(ctx context.Context, userID, orderID uuid.UUID) (*Workflow, error)
	ArmAutoPayment(ctx context.Context, order *models.Order) (*models.Order, bool, error)
}

// ServiceParams wires the order service. Timers and Notifier are optional.
type ServiceParams struct {
	Repo                     Repository
	Gigs                     gigLookup
	Users                    userLookup
	Settler                  Settler
	Timers                   Timers
	Notifier                 notifications.Notifier
	Logger                   *logger.Logger
	DefaultResponseTimeHours int
}

type service struct {
	repo          Repository
	gigs          gigLookup
	users         userLookup
	settler       Settler
	timers        Timers
	notifier      notifications.Notifier
	logg          *logger.Logger
	responseHours int
	now           func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Gigs == nil {
		return nil, fmt.Errorf("gig lookup required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user lookup required")
	}
	if params.Settler == nil {
		return nil, fmt.Errorf("settler required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	hours := params.DefaultResponseTimeHours
	if hours <= 0 {
		hours = defaultResponseTimeHours
	}
	return &service{
		repo:          params.Repo,
		gigs:          params.Gigs,
		users:         params.Users,
		settler:       params.Settler,
		timers:        params.Timers,
		notifier:      params.Notifier,
		logg:          params.Logger,
		responseHours: hours,
		now:           time.Now,
	}, nil
}

func (s *service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *service) Create(ctx context.Context, buyerID uuid.UUID, input CreateOrderInput) (*models.Order, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.GigID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gig_id is required")
	}

	gig, err := s.gigs.FindByID(ctx, input.GigID)
	if err != nil {
		return nil, lookupErr(err, "gig not found", "load gig")
	}
	if !gig.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "gig is not accepting orders")
	}
	if _, err := s.users.FindByID(ctx, buyerID); err != nil {
		return nil, lookupErr(err, "buyer not found", "load buyer")
	}
	if gig.SellerID == buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "you cannot order your own gig")
	}

	hours := gig.ResponseTimeHours
	if hours <= 0 {
		hours = s.responseHours
	}
	order := &models.Order{
		GigID:             gig.ID,
		ClientID:          buyerID,
		GigOwnerID:        gig.SellerID,
		PriceAtPurchase:   gig.Price,
		Requirement:       strings.TrimSpace(input.Requirement),
		Status:            enums.OrderStatusPending,
		ResponseTimeHours: hours,
	}
	if err := s.repo.Create(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(ctx, "order created")
	s.notify(ctx, notifications.Notice{
		UserID:  order.GigOwnerID,
		OrderID: order.ID,
		Type:    enums.NotificationTypeOrderCreated,
		Title:   "New order",
		Message: fmt.Sprintf("You received an order for %q.", gig.Title),
	})
	return order, nil
}

func (s *service) Get(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	order, _, err := s.Party(ctx, userID, orderID)
	return order, err
}

func (s *service) List(ctx context.Context, userID uuid.UUID, input ListOrdersInput) (*OrderList, error) {
	filter := ListFilter{UserID: userID}
	if input.Role != "" {
		role, err := enums.ParseActorRole(input.Role)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "role must be buyer or seller")
		}
		filter.Role = &role
	}
	if input.Status != "" {
		status, err := enums.ParseOrderStatus(input.Status)
		if err != nil {
			return nil, invalidStatus(input.Status)
		}
		filter.Status = &status
	}

	list, err := s.repo.List(ctx, filter, pagination.Params{Limit: input.Limit, Cursor: input.Cursor})
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return list, nil
}

// Party loads an order and resolves the principal's role on it.
func (s *service) Party(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, enums.ActorRole, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, "", err
	}
	actor, err := ResolveActor(order, userID)
	if err != nil {
		return nil, "", err
	}
	return order, actor, nil
}

func (s *service) UpdateStatus(ctx context.Context, userID, orderID uuid.UUID, raw string) (*models.Order, error) {
	to, err := enums.ParseOrderStatus(strings.TrimSpace(raw))
	if err != nil {
		return nil, invalidStatus(raw)
	}
	order, actor, err := s.Party(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(order.Status, to, actor); err != nil {
		return nil, err
	}
	if to == enums.OrderStatusCompleted {
		return s.settle(ctx, order)
	}
	return s.apply(ctx, order, actor, to, "")
}

func (s *service) MarkDelivered(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	order, actor, err := s.Party(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(order.Status, enums.OrderStatusDelivered, actor); err != nil {
		return nil, err
	}
	return s.apply(ctx, order, actor, enums.OrderStatusDelivered, enums.NotificationTypeOrderDelivered)
}

func (s *service) RequestRevision(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	order, actor, err := s.Party(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(order.Status, enums.OrderStatusRevisionRequested, actor); err != nil {
		return nil, err
	}
	return s.apply(ctx, order, actor, enums.OrderStatusRevisionRequested, "")
}

func (s *service) HandleRevision(ctx context.Context, userID, orderID uuid.UUID, action RevisionAction) (*models.Order, error) {
	var (
		to     enums.OrderStatus
		notice enums.NotificationType
	)
	switch action {
	case RevisionAccept:
		to, notice = enums.OrderStatusInProgress, enums.NotificationTypeRevisionAccepted
	case RevisionDecline:
		to, notice = enums.OrderStatusDelivered, enums.NotificationTypeRevisionDeclined
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "action must be accept or decline")
	}

	order, actor, err := s.Party(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusRevisionRequested {
		return nil, invalidTransition(order.Status, to)
	}
	if err := Authorize(order.Status, to, actor); err != nil {
		return nil, err
	}
	return s.apply(ctx, order, actor, to, notice)
}

// Pay settles a delivered order for its buyer. Paying a completed order
// returns it unchanged.
func (s *service) Pay(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	order, actor, err := s.Party(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if actor != enums.ActorRoleBuyer {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can pay for an order")
	}
	switch order.Status {
	case enums.OrderStatusCompleted:
		return order, nil
	case enums.OrderStatusDelivered:
		return s.settle(ctx, order)
	}
	return nil, notPayable(order.Status)
}

func (s *service) settle(ctx context.Context, order *models.Order) (*models.Order, error) {
	res, err := s.settler.Settle(ctx, settlement.Request{OrderID: order.ID, Trigger: enums.SettlementTriggerManual})
	if err != nil {
		return nil, err
	}
	switch res.Outcome {
	case settlement.OutcomeSettled, settlement.OutcomeAlreadySettled:
		return res.Order, nil
	}
	status := order.Status
	if res.Order != nil {
		status = res.Order.Status
	}
	return nil, notPayable(status)
}

// apply performs a non-settlement transition that Authorize already allowed.
func (s *service) apply(ctx context.Context, order *models.Order, actor enums.ActorRole, to enums.OrderStatus, notice enums.NotificationType) (*models.Order, error) {
	from := order.Status
	now := s.clock()
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	ctx = s.logg.WithActorRole(ctx, string(actor))

	fields := map[string]any{"updated_at": now}
	switch to {
	case enums.OrderStatusInProgress:
		if from == enums.OrderStatusPending {
			gig, err := s.gigs.FindByID(ctx, order.GigID)
			if err != nil {
				return nil, lookupErr(err, "gig not found", "load gig")
			}
			fields["delivery_deadline"] = now.AddDate(0, 0, gig.DeliveryDays)
		}
	case enums.OrderStatusDelivered:
		count, err := s.repo.CountDeliveryFiles(ctx, order.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count delivery files")
		}
		if count == 0 {
			return nil, pkgerrors.New(pkgerrors.CodePrecondition, "upload at least one delivery file before marking the order delivered")
		}
	case enums.OrderStatusRevisionRequested:
		fields["download_start_time"] = nil
		fields["auto_payment_deadline"] = nil
	}

	ok, err := s.repo.Transition(ctx, order.ID, from, to, fields)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !ok {
		current, err := s.load(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		return nil, invalidTransition(current.Status, to)
	}

	if to == enums.OrderStatusRevisionRequested && s.timers != nil {
		s.timers.Cancel(order.ID)
	}

	updated, err := s.load(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"from": string(from), "to": string(to)}), "order status changed")
	s.notifyTransition(ctx, updated, actor, from, notice)
	return updated, nil
}

// ArmAutoPayment starts the response window on the buyer's first access to a
// delivered order. It returns the current order and whether this call armed it.
func (s *service) ArmAutoPayment(ctx context.Context, order *models.Order) (*models.Order, bool, error) {
	if order == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.Status != enums.OrderStatusDelivered || order.DownloadStartTime != nil {
		return order, false, nil
	}

	hours := order.ResponseTimeHours
	if hours <= 0 {
		hours = s.responseHours
	}
	start := s.clock()
	deadline := start.Add(time.Duration(hours) * time.Hour)

	armed, err := s.repo.ArmAutoPayment(ctx, order.ID, start, deadline)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "arm auto-payment")
	}
	current, err := s.load(ctx, order.ID)
	if err != nil {
		return nil, false, err
	}
	if !armed {
		return current, false, nil
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(s.logg.WithField(ctx, "auto_payment_deadline", deadline), "auto-payment armed")
	if s.timers != nil {
		s.timers.Schedule(order.ID, deadline)
	}
	when := deadline.Format(time.RFC1123)
	s.notify(ctx,
		notifications.Notice{
			UserID:  order.ClientID,
			OrderID: order.ID,
			Type:    enums.NotificationTypeAutoPaymentArmed,
			Title:   "Review window started",
			Message: fmt.Sprintf("Payment will be released automatically at %s unless you request a revision.", when),
		},
		notifications.Notice{
			UserID:  order.GigOwnerID,
			OrderID: order.ID,
			Type:    enums.NotificationTypeAutoPaymentArmed,
			Title:   "Buyer opened your delivery",
			Message: fmt.Sprintf("Payment will be released automatically at %s.", when),
		},
	)
	return current, true, nil
}

func (s *service) Workflow(ctx context.Context, userID, orderID uuid.UUID) (*Workflow, error) {
	order, actor, err := s.Party(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	count, err := s.repo.CountDeliveryFiles(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count delivery files")
	}

	wf := &Workflow{
		OrderID:     order.ID,
		Status:      order.Status,
		Role:        actor,
		NextActions: NextActions(order, actor, count),
		FileCount:   count,
	}
	if order.IsArmed() && order.DownloadStartTime != nil {
		remaining := order.AutoPaymentDeadline.Sub(s.clock())
		if remaining < 0 {
			remaining = 0
		}
		wf.AutoPayment = &AutoPaymentWindow{
			DownloadStartTime: *order.DownloadStartTime,
			Deadline:          *order.AutoPaymentDeadline,
			SecondsRemaining:  int64(remaining / time.Second),
		}
	}
	return wf, nil
}

func (s *service) load(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, lookupErr(err, "order not found", "load order")
	}
	return order, nil
}

func (s *service) notifyTransition(ctx context.Context, order *models.Order, actor enums.ActorRole, from enums.OrderStatus, kind enums.NotificationType) {
	recipient := order.ClientID
	if actor == enums.ActorRoleBuyer {
		recipient = order.GigOwnerID
	}

	var title, message string
	if kind == "" {
		switch order.Status {
		case enums.OrderStatusInProgress:
			kind = enums.NotificationTypeOrderStarted
		case enums.OrderStatusCancelled:
			kind = enums.NotificationTypeOrderCancelled
		case enums.OrderStatusRevisionRequested:
			kind = enums.NotificationTypeRevisionRequested
		case enums.OrderStatusDelivered:
			kind = enums.NotificationTypeOrderDelivered
		default:
			return
		}
	}
	switch kind {
	case enums.NotificationTypeOrderStarted:
		title, message = "Order started", "The seller started working on your order."
	case enums.NotificationTypeOrderCancelled:
		title, message = "Order cancelled", fmt.Sprintf("The %s cancelled the order.", actor)
	case enums.NotificationTypeRevisionRequested:
		title, message = "Revision requested", "The buyer asked for changes to the delivery."
	case enums.NotificationTypeRevisionAccepted:
		title, message = "Revision accepted", "The seller is working on your revision."
	case enums.NotificationTypeRevisionDeclined:
		title, message = "Revision declined", "The seller kept the existing delivery."
	case enums.NotificationTypeOrderDelivered:
		title, message = "Order delivered", "Your delivery is ready to review."
	}
	s.notify(ctx, notifications.Notice{
		UserID:  recipient,
		OrderID: order.ID,
		Type:    kind,
		Title:   title,
		Message: message,
	})
}

func (s *service) notify(ctx context.Context, notices ...notifications.Notice) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, notices...)
}

func invalidStatus(raw string) error {
	return pkgerrors.New(pkgerrors.CodeInvalidStatus, fmt.Sprintf("unknown order status %q", raw)).
		WithDetails(map[string]string{"status": raw})
}

func notPayable(status enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodePrecondition, "order must be delivered before it can be paid").
		WithDetails(map[string]string{"current": string(status)})
}

func lookupErr(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
