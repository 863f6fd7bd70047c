package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gigmarket/gigmarket-backend/pkg/enums"
)

// Order is a buyer's purchase of a gig, driven through the order state machine.
type Order struct {
	ID                  uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	GigID               uuid.UUID         `gorm:"column:gig_id;type:uuid;not null" json:"gig_id"`
	ClientID            uuid.UUID         `gorm:"column:client_id;type:uuid;not null" json:"client_id"`
	GigOwnerID          uuid.UUID         `gorm:"column:gig_owner_id;type:uuid;not null" json:"gig_owner_id"`
	PriceAtPurchase     decimal.Decimal   `gorm:"column:price_at_purchase;type:numeric(12,2);not null" json:"price_at_purchase"`
	Requirement         string            `gorm:"column:requirement;not null;default:''" json:"requirement"`
	Status              enums.OrderStatus `gorm:"column:status;type:text;not null;default:'pending'" json:"status"`
	ResponseTimeHours   int               `gorm:"column:response_time_hours;not null;default:24" json:"response_time_hours"`
	DeliveryDeadline    *time.Time        `gorm:"column:delivery_deadline" json:"delivery_deadline,omitempty"`
	DownloadStartTime   *time.Time        `gorm:"column:download_start_time" json:"download_start_time,omitempty"`
	AutoPaymentDeadline *time.Time        `gorm:"column:auto_payment_deadline" json:"auto_payment_deadline,omitempty"`
	CompletedAt         *time.Time        `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt           time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// IsArmed reports whether the auto-payment countdown is running.
func (o *Order) IsArmed() bool {
	return o != nil && o.Status == enums.OrderStatusDelivered && o.AutoPaymentDeadline != nil
}

// AutoPaymentDue reports whether an armed deadline has elapsed at now.
func (o *Order) AutoPaymentDue(now time.Time) bool {
	return o.IsArmed() && !o.AutoPaymentDeadline.After(now)
}
