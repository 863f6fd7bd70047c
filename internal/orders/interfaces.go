package orders

import (
	"context"
	"time"

	"github.com/gigmarket/gigmarket-backend/internal/settlement"
	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
	"github.com/gigmarket/gigmarket-backend/pkg/enums"
	"github.com/gigmarket/gigmarket-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for the orders table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) (*OrderList, error)
	// Transition writes to only when the stored status still equals from.
	Transition(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, fields map[string]any) (bool, error)
	// ArmAutoPayment starts the window only for a delivered, unarmed order.
	ArmAutoPayment(ctx context.Context, id uuid.UUID, start, deadline time.Time) (bool, error)
	// ListDue pages due orders by (auto_payment_deadline, id); after is the
	// last row of the previous page or nil.
	ListDue(ctx context.Context, now time.Time, after *models.Order, limit int) ([]models.Order, error)
	ListArmed(ctx context.Context) ([]models.Order, error)
	CountDeliveryFiles(ctx context.Context, orderID uuid.UUID) (int64, error)
}

// Settler completes delivered orders.
type Settler interface {
	Settle(ctx context.Context, req settlement.Request) (*settlement.Result, error)
}

// Timers holds in-process deferred auto-payment checks.
type Timers interface {
	Schedule(orderID uuid.UUID, deadline time.Time)
	Cancel(orderID uuid.UUID)
}

type gigLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Gig, error)
}

type userLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}
