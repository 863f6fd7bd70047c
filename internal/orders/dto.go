package orders

import (
	"time"

	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
	"github.com/gigmarket/gigmarket-backend/pkg/enums"
	"github.com/google/uuid"
)

// CreateOrderInput is the buyer's order request.
type CreateOrderInput struct {
	GigID       uuid.UUID `json:"gig_id" validate:"required"`
	Requirement string    `json:"requirement" validate:"max=5000"`
}

// UpdateStatusInput is the body for the generic status endpoint.
type UpdateStatusInput struct {
	Status string `json:"status" validate:"required"`
}

// RevisionAction is the seller's answer to a revision request.
type RevisionAction string

const (
	RevisionAccept  RevisionAction = "accept"
	RevisionDecline RevisionAction = "decline"
)

// HandleRevisionInput is the body for handle-revision.
type HandleRevisionInput struct {
	Action RevisionAction `json:"action" validate:"required,oneof=accept decline"`
}

// ListOrdersInput filters the principal's orders.
type ListOrdersInput struct {
	Role   string
	Status string
	Limit  int
	Cursor string
}

// ListFilter scopes a repository listing to one user.
type ListFilter struct {
	UserID uuid.UUID
	Role   *enums.ActorRole
	Status *enums.OrderStatus
}

// OrderList is one page of orders.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// AutoPaymentWindow describes a running auto-payment countdown.
type AutoPaymentWindow struct {
	DownloadStartTime time.Time `json:"download_start_time"`
	Deadline          time.Time `json:"auto_payment_deadline"`
	SecondsRemaining  int64     `json:"seconds_remaining"`
}

// Workflow is the role-specific view of where an order stands.
type Workflow struct {
	OrderID     uuid.UUID          `json:"order_id"`
	Status      enums.OrderStatus  `json:"status"`
	Role        enums.ActorRole    `json:"role"`
	NextActions []Action           `json:"next_actions"`
	FileCount   int64              `json:"file_count"`
	AutoPayment *AutoPaymentWindow `json:"auto_payment,omitempty"`
}
