package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/gigmarket/gigmarket-backend/api/responses"
	"github.com/gigmarket/gigmarket-backend/api/validators"
	"github.com/gigmarket/gigmarket-backend/internal/gigs"
	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
	pkgerrors "github.com/gigmarket/gigmarket-backend/pkg/errors"
	"github.com/gigmarket/gigmarket-backend/pkg/logger"
	"github.com/gigmarket/gigmarket-backend/pkg/pagination"
)

// GigService is the catalog surface the gig handlers depend on.
type GigService interface {
	Create(ctx context.Context, sellerID uuid.UUID, input gigs.CreateGigInput) (*models.Gig, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Gig, error)
	List(ctx context.Context, input gigs.ListGigsInput) (*gigs.GigList, error)
	Deactivate(ctx context.Context, sellerID, gigID uuid.UUID) error
}

// GigCreate publishes a gig owned by the principal.
func GigCreate(svc GigService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sellerID, err := principal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body gigs.CreateGigInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		gig, err := svc.Create(r.Context(), sellerID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, gig)
	}
}

func GigDetail(svc GigService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gigID, err := validators.ParseUUIDParam(r, "gigId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		gig, err := svc.Get(r.Context(), gigID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, gig)
	}
}

// GigList pages through active gigs, optionally for one seller.
func GigList(svc GigService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		query := r.URL.Query()
		list, err := svc.List(r.Context(), gigs.ListGigsInput{
			Limit:  limit,
			Cursor: strings.TrimSpace(query.Get("cursor")),
			Seller: strings.TrimSpace(query.Get("seller_id")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func GigDeactivate(svc GigService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sellerID, err := principal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		gigID, err := validators.ParseUUIDParam(r, "gigId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Deactivate(r.Context(), sellerID, gigID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"active": false})
	}
}

var _ GigService = (*gigs.Service)(nil)

func unavailable(name string) error {
	return pkgerrors.New(pkgerrors.CodeInternal, name+" unavailable")
}
