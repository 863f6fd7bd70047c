package deliveries

import (
	"context"

	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists delivery file metadata.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a delivery file repository to a database.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// CreateBatch inserts all rows or none when called inside a transaction.
func (r *Repository) CreateBatch(ctx context.Context, files []models.DeliveryFile) error {
	if len(files) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&files).Error
}

func (r *Repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.DeliveryFile, error) {
	var rows []models.DeliveryFile
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// FindByName returns the newest file on the order with the given original name.
func (r *Repository) FindByName(ctx context.Context, orderID uuid.UUID, name string) (*models.DeliveryFile, error) {
	var file models.DeliveryFile
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND original_name = ?", orderID, name).
		Order("created_at DESC").
		First(&file).Error
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *Repository) FindByID(ctx context.Context, orderID, fileID uuid.UUID) (*models.DeliveryFile, error) {
	var file models.DeliveryFile
	if err := r.db.WithContext(ctx).First(&file, "id = ? AND order_id = ?", fileID, orderID).Error; err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *Repository) Delete(ctx context.Context, orderID, fileID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND order_id = ?", fileID, orderID).
		Delete(&models.DeliveryFile{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
