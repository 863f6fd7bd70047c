package orders

import (
	"context"
	"time"

	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
	"github.com/gigmarket/gigmarket-backend/pkg/enums"
	"github.com/gigmarket/gigmarket-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter, params pagination.Params) (*OrderList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).Model(&models.Order{})
	switch {
	case filter.Role == nil:
		query = query.Where("client_id = ? OR gig_owner_id = ?", filter.UserID, filter.UserID)
	case *filter.Role == enums.ActorRoleBuyer:
		query = query.Where("client_id = ?", filter.UserID)
	default:
		query = query.Where("gig_owner_id = ?", filter.UserID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Order
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	page, next := pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return &OrderList{Orders: page, NextCursor: next}, nil
}

func (r *repository) Transition(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, fields map[string]any) (bool, error) {
	updates := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		updates[key] = value
	}
	updates["status"] = to

	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ArmAutoPayment(ctx context.Context, id uuid.UUID, start, deadline time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ? AND download_start_time IS NULL", id, enums.OrderStatusDelivered).
		Updates(map[string]any{
			"download_start_time":   start,
			"auto_payment_deadline": deadline,
			"updated_at":            start,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListDue returns delivered orders whose auto-payment deadline is at or before now, oldest first.
func (r *repository) ListDue(ctx context.Context, now time.Time, after *models.Order, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	q := r.db.WithContext(ctx).
		Where("status = ? AND auto_payment_deadline IS NOT NULL AND auto_payment_deadline <= ?", enums.OrderStatusDelivered, now)
	if after != nil && after.AutoPaymentDeadline != nil {
		q = q.Where("(auto_payment_deadline > ? OR (auto_payment_deadline = ? AND id > ?))",
			*after.AutoPaymentDeadline, *after.AutoPaymentDeadline, after.ID)
	}
	var rows []models.Order
	err := q.Order("auto_payment_deadline ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListArmed returns every delivered order with a running countdown.
func (r *repository) ListArmed(ctx context.Context) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND auto_payment_deadline IS NOT NULL", enums.OrderStatusDelivered).
		Order("auto_payment_deadline ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CountDeliveryFiles(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DeliveryFile{}).
		Where("order_id = ?", orderID).
		Count(&count).Error
	return count, err
}
