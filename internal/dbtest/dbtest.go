// Package dbtest provides a sqlite schema mirroring the Postgres migrations for
// repository and service tests.
package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
	"github.com/gigmarket/gigmarket-backend/pkg/enums"
)

var schema = []string{
	`CREATE TABLE users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  display_name TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'user',
  balance NUMERIC NOT NULL DEFAULT 0 CHECK (balance >= 0),
  last_login_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE TABLE gigs (
  id TEXT PRIMARY KEY,
  seller_id TEXT NOT NULL REFERENCES users(id),
  title TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  price NUMERIC NOT NULL CHECK (price > 0),
  delivery_days INTEGER NOT NULL CHECK (delivery_days > 0),
  response_time_hours INTEGER NOT NULL DEFAULT 24,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  gig_id TEXT NOT NULL REFERENCES gigs(id),
  client_id TEXT NOT NULL REFERENCES users(id),
  gig_owner_id TEXT NOT NULL REFERENCES users(id),
  price_at_purchase NUMERIC NOT NULL CHECK (price_at_purchase > 0),
  requirement TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','in_progress','delivered','revision_requested','completed','cancelled')),
  response_time_hours INTEGER NOT NULL DEFAULT 24,
  delivery_deadline DATETIME,
  download_start_time DATETIME,
  auto_payment_deadline DATETIME,
  completed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  CHECK (client_id <> gig_owner_id),
  CHECK (auto_payment_deadline IS NULL OR status = 'delivered')
)`,
	`CREATE TABLE delivery_files (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  original_name TEXT NOT NULL,
  storage_path TEXT NOT NULL UNIQUE,
  file_size INTEGER NOT NULL,
  file_type TEXT NOT NULL,
  uploaded_by TEXT NOT NULL REFERENCES users(id),
  message TEXT,
  created_at DATETIME
)`,
	`CREATE TABLE transactions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id),
  order_id TEXT REFERENCES orders(id),
  amount NUMERIC NOT NULL,
  type TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  created_at DATETIME
)`,
	`CREATE UNIQUE INDEX idx_transactions_order_settlement
  ON transactions (order_id, type)
  WHERE order_id IS NOT NULL AND type IN ('payment', 'received_payment')`,
	`CREATE TABLE notifications (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id),
  order_id TEXT,
  type TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  read_at DATETIME,
  created_at DATETIME
)`,
}

// Open returns an isolated in-memory database with the full schema. A single
// connection serializes concurrent transactions the way row locks would.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}

// CreateUser inserts a user with the given opening balance.
func CreateUser(t testing.TB, db *gorm.DB, name string, balance string) *models.User {
	t.Helper()
	user := &models.User{
		ID:           uuid.New(),
		Email:        fmt.Sprintf("%s-%s@example.com", name, uuid.NewString()[:8]),
		PasswordHash: "x",
		DisplayName:  name,
		Role:         enums.AccountRoleUser,
		Balance:      decimal.RequireFromString(balance),
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// CreateGig inserts an active gig owned by seller.
func CreateGig(t testing.TB, db *gorm.DB, seller *models.User, price string) *models.Gig {
	t.Helper()
	gig := &models.Gig{
		ID:                uuid.New(),
		SellerID:          seller.ID,
		Title:             "Logo design",
		Price:             decimal.RequireFromString(price),
		DeliveryDays:      3,
		ResponseTimeHours: 24,
		IsActive:          true,
	}
	if err := db.Create(gig).Error; err != nil {
		t.Fatalf("create gig: %v", err)
	}
	return gig
}

// CreateOrder inserts an order for gig in the given status.
func CreateOrder(t testing.TB, db *gorm.DB, buyer *models.User, gig *models.Gig, status enums.OrderStatus) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:                uuid.New(),
		GigID:             gig.ID,
		ClientID:          buyer.ID,
		GigOwnerID:        gig.SellerID,
		PriceAtPurchase:   gig.Price,
		Requirement:       "make it pop",
		Status:            status,
		ResponseTimeHours: gig.ResponseTimeHours,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

// ArmOrder sets the auto-payment window directly.
func ArmOrder(t testing.TB, db *gorm.DB, order *models.Order, started, deadline time.Time) {
	t.Helper()
	err := db.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
		"download_start_time":   started.UTC(),
		"auto_payment_deadline": deadline.UTC(),
	}).Error
	if err != nil {
		t.Fatalf("arm order: %v", err)
	}
}

// ReloadOrder re-reads an order.
func ReloadOrder(t testing.TB, db *gorm.DB, id uuid.UUID) *models.Order {
	t.Helper()
	var order models.Order
	if err := db.First(&order, "id = ?", id).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	return &order
}

// ReloadUser re-reads a user.
func ReloadUser(t testing.TB, db *gorm.DB, id uuid.UUID) *models.User {
	t.Helper()
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	return &user
}

// OrderTransactions lists ledger rows for an order.
func OrderTransactions(t testing.TB, db *gorm.DB, orderID uuid.UUID) []models.Transaction {
	t.Helper()
	var rows []models.Transaction
	if err := db.Where("order_id = ?", orderID).Order("type ASC").Find(&rows).Error; err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	return rows
}
