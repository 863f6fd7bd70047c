package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gigmarket/gigmarket-backend/pkg/enums"
)

// User is a marketplace account; any user may buy and sell.
type User struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email        string            `gorm:"column:email;type:text;not null;uniqueIndex" json:"email"`
	PasswordHash string            `gorm:"column:password_hash;not null" json:"-"`
	DisplayName  string            `gorm:"column:display_name;not null" json:"display_name"`
	Role         enums.AccountRole `gorm:"column:role;type:text;not null;default:'user'" json:"role"`
	Balance      decimal.Decimal   `gorm:"column:balance;type:numeric(12,2);not null;default:0" json:"balance"`
	LastLoginAt  *time.Time        `gorm:"column:last_login_at" json:"last_login_at,omitempty"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
