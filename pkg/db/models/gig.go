package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Gig is a seller's listing that buyers order against.
type Gig struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SellerID          uuid.UUID       `gorm:"column:seller_id;type:uuid;not null" json:"seller_id"`
	Title             string          `gorm:"column:title;not null" json:"title"`
	Description       string          `gorm:"column:description;not null;default:''" json:"description"`
	Price             decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null" json:"price"`
	DeliveryDays      int             `gorm:"column:delivery_days;not null" json:"delivery_days"`
	ResponseTimeHours int             `gorm:"column:response_time_hours;not null;default:24" json:"response_time_hours"`
	IsActive          bool            `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
