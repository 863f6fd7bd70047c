package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
	"github.com/gigmarket/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/gigmarket/gigmarket-backend/pkg/errors"
	"github.com/gigmarket/gigmarket-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ClearanceWindow is how long received payments are reported as pending clearance.
const ClearanceWindow = 7 * 24 * time.Hour

var maxAmount = decimal.NewFromInt(1_000_000)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes wallet operations for the authenticated user.
type Service interface {
	Wallet(ctx context.Context, userID uuid.UUID) (*Wallet, error)
	Deposit(ctx context.Context, userID uuid.UUID, req AmountRequest) (*MutationResult, error)
	Withdraw(ctx context.Context, userID uuid.UUID, req AmountRequest) (*MutationResult, error)
	Transactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (*TransactionList, error)
}

type service struct {
	repo Repository
	tx   txRunner
	now  func() time.Time
}

// NewService builds the wallet service.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *service) Wallet(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	balance, err := s.repo.Balance(ctx, userID)
	if err != nil {
		return nil, mapLookupErr(err, "load balance")
	}
	pending, err := s.repo.SumSince(ctx, userID, enums.TransactionTypeReceivedPayment, s.now().Add(-ClearanceWindow))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum pending clearance")
	}
	return &Wallet{Balance: balance, PendingClearance: pending}, nil
}

func (s *service) Deposit(ctx context.Context, userID uuid.UUID, req AmountRequest) (*MutationResult, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	return s.mutate(ctx, userID, enums.TransactionTypeDeposit, req)
}

func (s *service) Withdraw(ctx context.Context, userID uuid.UUID, req AmountRequest) (*MutationResult, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	return s.mutate(ctx, userID, enums.TransactionTypeWithdraw, req)
}

func (s *service) mutate(ctx context.Context, userID uuid.UUID, typ enums.TransactionType, req AmountRequest) (*MutationResult, error) {
	amount := req.Amount.Round(2)
	txn := &models.Transaction{
		UserID:      userID,
		Type:        typ,
		Description: req.Description,
	}
	var balance decimal.Decimal

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		switch typ {
		case enums.TransactionTypeDeposit:
			if err := repo.Credit(ctx, userID, amount); err != nil {
				return mapLookupErr(err, "credit balance")
			}
			txn.Amount = amount
		default:
			ok, err := repo.Debit(ctx, userID, amount)
			if err != nil {
				return mapLookupErr(err, "debit balance")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "balance does not cover withdrawal").
					WithDetails(map[string]string{"amount": amount.StringFixed(2)})
			}
			txn.Amount = amount.Neg()
		}
		if txn.Description == "" {
			txn.Description = string(typ)
		}
		if err := repo.Create(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record transaction")
		}
		var err error
		balance, err = repo.Balance(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload balance")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &MutationResult{Transaction: txn, Balance: balance}, nil
}

func (s *service) Transactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (*TransactionList, error) {
	list, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	return list, nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if amount.GreaterThan(maxAmount) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount exceeds limit")
	}
	if !amount.Equal(amount.Round(2)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount has more than two decimal places")
	}
	return nil
}

func mapLookupErr(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
