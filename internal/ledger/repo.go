package ledger

import (
	"context"
	"time"

	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
	"github.com/gigmarket/gigmarket-backend/pkg/enums"
	"github.com/gigmarket/gigmarket-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Repository manages balances and the immutable transaction log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) error
	Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error
	Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error)
	Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*TransactionList, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error)
	SumSince(ctx context.Context, userID uuid.UUID, typ enums.TransactionType, since time.Time) (decimal.Decimal, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

// Credit adds amount to the user's balance.
func (r *repository) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Debit subtracts amount only when the balance covers it. It returns false
// when funds are insufficient and gorm.ErrRecordNotFound for unknown users.
func (r *repository) Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND balance >= ?", userID, amount).
		UpdateColumn("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	if _, err := r.Balance(ctx, userID); err != nil {
		return false, err
	}
	return false, nil
}

func (r *repository) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Select("id", "balance").
		First(&user, "id = ?", userID).Error
	if err != nil {
		return decimal.Zero, err
	}
	return user.Balance, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*TransactionList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Transaction
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	page, next := pagination.Trim(rows, params.Limit, func(t models.Transaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	})
	return &TransactionList{Transactions: page, NextCursor: next}, nil
}

func (r *repository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error) {
	var rows []models.Transaction
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// SumSince totals a user's entries of one type created at or after since.
func (r *repository) SumSince(ctx context.Context, userID uuid.UUID, typ enums.TransactionType, since time.Time) (decimal.Decimal, error) {
	var rows []models.Transaction
	if err := r.db.WithContext(ctx).
		Select("amount").
		Where("user_id = ? AND type = ? AND created_at >= ?", userID, typ, since).
		Find(&rows).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.Amount)
	}
	return total, nil
}
