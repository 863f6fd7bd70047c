package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigmarket/gigmarket-backend/internal/ledger"
	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
	pkgerrors "github.com/gigmarket/gigmarket-backend/pkg/errors"
	"github.com/gigmarket/gigmarket-backend/pkg/pagination"
)

type stubLedger struct {
	balance  decimal.Decimal
	lastKind string
	lastAmt  decimal.Decimal
	params   pagination.Params
}

func (s *stubLedger) Wallet(ctx context.Context, userID uuid.UUID) (*ledger.Wallet, error) {
	return &ledger.Wallet{Balance: s.balance, PendingClearance: decimal.Zero}, nil
}

func (s *stubLedger) Deposit(ctx context.Context, userID uuid.UUID, req ledger.AmountRequest) (*ledger.MutationResult, error) {
	s.lastKind, s.lastAmt = "deposit", req.Amount
	s.balance = s.balance.Add(req.Amount)
	return &ledger.MutationResult{Transaction: &models.Transaction{Amount: req.Amount}, Balance: s.balance}, nil
}

func (s *stubLedger) Withdraw(ctx context.Context, userID uuid.UUID, req ledger.AmountRequest) (*ledger.MutationResult, error) {
	s.lastKind, s.lastAmt = "withdraw", req.Amount
	if req.Amount.GreaterThan(s.balance) {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient funds")
	}
	s.balance = s.balance.Sub(req.Amount)
	return &ledger.MutationResult{Transaction: &models.Transaction{Amount: req.Amount.Neg()}, Balance: s.balance}, nil
}

func (s *stubLedger) Transactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ledger.TransactionList, error) {
	s.params = params
	if params.Cursor == "broken" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, errors.New("bad cursor"), "invalid cursor")
	}
	return &ledger.TransactionList{Transactions: []models.Transaction{}}, nil
}

func TestWalletDepositAndWithdraw(t *testing.T) {
	svc := &stubLedger{balance: decimal.RequireFromString("10.00")}
	user := uuid.New()

	resp := httptest.NewRecorder()
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/wallet/deposit", strings.NewReader(`{"amount":"25.50"}`)), user)
	WalletDeposit(svc, testLogger())(resp, req)
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "deposit", svc.lastKind)
	assert.True(t, svc.lastAmt.Equal(decimal.RequireFromString("25.50")))

	resp = httptest.NewRecorder()
	req = withUser(httptest.NewRequest(http.MethodPost, "/api/v1/wallet/withdraw", strings.NewReader(`{"amount":"100"}`)), user)
	WalletWithdraw(svc, testLogger())(resp, req)
	assert.Equal(t, http.StatusPaymentRequired, resp.Code)
	assert.True(t, svc.balance.Equal(decimal.RequireFromString("35.50")))
}

func TestWalletNilServiceDoesNotPanic(t *testing.T) {
	resp := httptest.NewRecorder()
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/wallet/deposit", strings.NewReader(`{"amount":"1"}`)), uuid.New())
	WalletDeposit(nil, testLogger())(resp, req)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestWalletFetchRequiresPrincipal(t *testing.T) {
	resp := httptest.NewRecorder()
	WalletFetch(&stubLedger{}, testLogger())(resp, httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestWalletTransactionsPagination(t *testing.T) {
	svc := &stubLedger{}
	resp := httptest.NewRecorder()
	req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/wallet/transactions?limit=3&cursor=broken", nil), uuid.New())
	WalletTransactions(svc, testLogger())(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, 3, svc.params.Limit)
}
