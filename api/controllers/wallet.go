package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/gigmarket/gigmarket-backend/api/responses"
	"github.com/gigmarket/gigmarket-backend/api/validators"
	"github.com/gigmarket/gigmarket-backend/internal/ledger"
	"github.com/gigmarket/gigmarket-backend/pkg/logger"
	"github.com/gigmarket/gigmarket-backend/pkg/pagination"
)

// WalletFetch returns the principal's balance and pending clearance.
func WalletFetch(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("ledger service"))
			return
		}
		userID, err := principal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		wallet, err := svc.Wallet(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, wallet)
	}
}

// WalletDeposit credits the principal's balance.
func WalletDeposit(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return walletMutation(svc, logg, ledger.Service.Deposit)
}

// WalletWithdraw debits the principal's balance if funds allow.
func WalletWithdraw(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return walletMutation(svc, logg, ledger.Service.Withdraw)
}

func walletMutation(svc ledger.Service, logg *logger.Logger, op func(ledger.Service, context.Context, uuid.UUID, ledger.AmountRequest) (*ledger.MutationResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("ledger service"))
			return
		}
		userID, err := principal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body ledger.AmountRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := op(svc, r.Context(), userID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// WalletTransactions pages through the principal's ledger.
func WalletTransactions(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("ledger service"))
			return
		}
		userID, err := principal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.Transactions(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
