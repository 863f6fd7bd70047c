package enums

import "fmt"

// OrderStatus tracks the lifecycle of a gig order.
type OrderStatus string

const (
	OrderStatusPending           OrderStatus = "pending"
	OrderStatusInProgress        OrderStatus = "in_progress"
	OrderStatusDelivered         OrderStatus = "delivered"
	OrderStatusRevisionRequested OrderStatus = "revision_requested"
	OrderStatusCompleted         OrderStatus = "completed"
	OrderStatusCancelled         OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusInProgress,
	OrderStatusDelivered,
	OrderStatusRevisionRequested,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further status writes are allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// AllowsDeliveryFiles reports whether delivery files may exist in this status.
func (s OrderStatus) AllowsDeliveryFiles() bool {
	switch s {
	case OrderStatusInProgress, OrderStatusRevisionRequested, OrderStatusDelivered, OrderStatusCompleted:
		return true
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
