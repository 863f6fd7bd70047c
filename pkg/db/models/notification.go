package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/gigmarket/gigmarket-backend/pkg/enums"
)

// Notification stores in-app notification payloads scoped to users.
type Notification struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID              `gorm:"column:user_id;type:uuid;not null" json:"user_id"`
	OrderID   *uuid.UUID             `gorm:"column:order_id;type:uuid" json:"order_id,omitempty"`
	Type      enums.NotificationType `gorm:"column:type;type:text;not null" json:"type"`
	Title     string                 `gorm:"column:title;type:text;not null" json:"title"`
	Message   string                 `gorm:"column:message;type:text;not null" json:"message"`
	ReadAt    *time.Time             `gorm:"column:read_at" json:"read_at,omitempty"`
	CreatedAt time.Time              `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
