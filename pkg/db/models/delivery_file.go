package models

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryFile is the metadata for one file a seller delivered on an order.
type DeliveryFile struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID      uuid.UUID `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	OriginalName string    `gorm:"column:original_name;not null" json:"original_name"`
	StoragePath  string    `gorm:"column:storage_path;not null" json:"-"`
	FileSize     int64     `gorm:"column:file_size;not null" json:"file_size"`
	FileType     string    `gorm:"column:file_type;not null" json:"file_type"`
	UploadedBy   uuid.UUID `gorm:"column:uploaded_by;type:uuid;not null" json:"uploaded_by"`
	Message      *string   `gorm:"column:message" json:"message,omitempty"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
