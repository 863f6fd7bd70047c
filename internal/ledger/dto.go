package ledger

import (
	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
	"github.com/shopspring/decimal"
)

// TransactionList is one page of a user's ledger.
type TransactionList struct {
	Transactions []models.Transaction `json:"transactions"`
	NextCursor   string               `json:"next_cursor,omitempty"`
}

// Wallet summarizes a user's funds.
type Wallet struct {
	Balance decimal.Decimal `json:"balance"`
	// PendingClearance is received payments from the clearance window. It is
	// informational only; those funds are already part of Balance.
	PendingClearance decimal.Decimal `json:"pending_clearance"`
}

// AmountRequest is the body for deposit and withdraw.
type AmountRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Description string          `json:"description" validate:"max=200"`
}

// MutationResult is returned by deposit and withdraw.
type MutationResult struct {
	Transaction *models.Transaction `json:"transaction"`
	Balance     decimal.Decimal     `json:"balance"`
}
