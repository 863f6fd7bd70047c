package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gigmarket/gigmarket-backend/pkg/enums"
)

// Transaction is an immutable, signed ledger entry against a user's balance.
type Transaction struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID      uuid.UUID             `gorm:"column:user_id;type:uuid;not null" json:"user_id"`
	OrderID     *uuid.UUID            `gorm:"column:order_id;type:uuid" json:"order_id,omitempty"`
	Amount      decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Type        enums.TransactionType `gorm:"column:type;type:text;not null" json:"type"`
	Description string                `gorm:"column:description;not null;default:''" json:"description"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
