package gigs

import (
	"context"

	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
	"github.com/gigmarket/gigmarket-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists gigs.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a gig repository to a database.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, gig *models.Gig) error {
	return r.db.WithContext(ctx).Create(gig).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Gig, error) {
	var gig models.Gig
	if err := r.db.WithContext(ctx).First(&gig, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &gig, nil
}

// SetActive toggles listing visibility for the owning seller.
func (r *Repository) SetActive(ctx context.Context, id, sellerID uuid.UUID, active bool) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Gig{}).
		Where("id = ? AND seller_id = ?", id, sellerID).
		Update("is_active", active)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

type listParams struct {
	SellerID   *uuid.UUID
	ActiveOnly bool
	Limit      int
	Cursor     *pagination.Cursor
}

func (r *Repository) List(ctx context.Context, params listParams) ([]models.Gig, string, error) {
	query := r.db.WithContext(ctx).Model(&models.Gig{})
	if params.SellerID != nil {
		query = query.Where("seller_id = ?", *params.SellerID)
	}
	if params.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", params.Cursor.CreatedAt, params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var rows []models.Gig
	if err := query.Order("created_at DESC").Order("id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&rows).Error; err != nil {
		return nil, "", err
	}
	page, next := pagination.Trim(rows, params.Limit, func(g models.Gig) pagination.Cursor {
		return pagination.Cursor{CreatedAt: g.CreatedAt, ID: g.ID}
	})
	return page, next, nil
}
