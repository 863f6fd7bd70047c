package orders

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/gigmarket/gigmarket-backend/api/middleware"
	"github.com/gigmarket/gigmarket-backend/api/responses"
	"github.com/gigmarket/gigmarket-backend/api/validators"
	internalorders "github.com/gigmarket/gigmarket-backend/internal/orders"
	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
	pkgerrors "github.com/gigmarket/gigmarket-backend/pkg/errors"
	"github.com/gigmarket/gigmarket-backend/pkg/logger"
	"github.com/gigmarket/gigmarket-backend/pkg/pagination"
)

// orderAction is any single-order operation that only needs the principal.
type orderAction func(svc internalorders.Service, r *http.Request, userID, orderID uuid.UUID) (*models.Order, error)

// Create places an order on a gig for the principal as buyer.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		buyerID, err := principal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body internalorders.CreateOrderInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Create(r.Context(), buyerID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// List returns the principal's orders from the buyer side, seller side, or both.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
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
		query := r.URL.Query()
		list, err := svc.List(r.Context(), userID, internalorders.ListOrdersInput{
			Role:   strings.TrimSpace(query.Get("role")),
			Status: strings.TrimSpace(query.Get("status")),
			Limit:  limit,
			Cursor: strings.TrimSpace(query.Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Detail returns one order to either party.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return orderHandler(svc, logg, func(svc internalorders.Service, r *http.Request, userID, orderID uuid.UUID) (*models.Order, error) {
		return svc.Get(r.Context(), userID, orderID)
	})
}

// UpdateStatus applies a raw status transition from the generic endpoint.
func UpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return orderHandler(svc, logg, func(svc internalorders.Service, r *http.Request, userID, orderID uuid.UUID) (*models.Order, error) {
		var body internalorders.UpdateStatusInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.UpdateStatus(r.Context(), userID, orderID, body.Status)
	})
}

func MarkDelivered(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return orderHandler(svc, logg, func(svc internalorders.Service, r *http.Request, userID, orderID uuid.UUID) (*models.Order, error) {
		return svc.MarkDelivered(r.Context(), userID, orderID)
	})
}

// Pay settles a delivered order on the buyer's request. Repeats are no-ops.
func Pay(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return orderHandler(svc, logg, func(svc internalorders.Service, r *http.Request, userID, orderID uuid.UUID) (*models.Order, error) {
		return svc.Pay(r.Context(), userID, orderID)
	})
}

func RequestRevision(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return orderHandler(svc, logg, func(svc internalorders.Service, r *http.Request, userID, orderID uuid.UUID) (*models.Order, error) {
		return svc.RequestRevision(r.Context(), userID, orderID)
	})
}

// HandleRevision takes the seller's accept or decline answer.
func HandleRevision(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return orderHandler(svc, logg, func(svc internalorders.Service, r *http.Request, userID, orderID uuid.UUID) (*models.Order, error) {
		var body internalorders.HandleRevisionInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.HandleRevision(r.Context(), userID, orderID, body.Action)
	})
}

// Workflow returns the principal's view of the order with its next actions.
func Workflow(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, orderID, err := orderScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Workflow(r.Context(), userID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func orderHandler(svc internalorders.Service, logg *logger.Logger, action orderAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, orderID, err := orderScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := action(svc, r, userID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func orderScope(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	userID, err := principal(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	orderID, err := validators.ParseUUIDParam(r, "orderId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return userID, orderID, nil
}

func principal(r *http.Request) (uuid.UUID, error) {
	userID := middleware.UserUUIDFromContext(r.Context())
	if userID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return userID, nil
}
