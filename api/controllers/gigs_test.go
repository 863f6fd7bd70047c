package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigmarket/gigmarket-backend/internal/gigs"
	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
	pkgerrors "github.com/gigmarket/gigmarket-backend/pkg/errors"
)

type stubGigs struct {
	created     *gigs.CreateGigInput
	listInput   gigs.ListGigsInput
	deactivated uuid.UUID
}

func (s *stubGigs) Create(ctx context.Context, sellerID uuid.UUID, input gigs.CreateGigInput) (*models.Gig, error) {
	s.created = &input
	return &models.Gig{ID: uuid.New(), SellerID: sellerID, Title: input.Title, Price: input.Price}, nil
}

func (s *stubGigs) Get(ctx context.Context, id uuid.UUID) (*models.Gig, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gig not found")
}

func (s *stubGigs) List(ctx context.Context, input gigs.ListGigsInput) (*gigs.GigList, error) {
	s.listInput = input
	return &gigs.GigList{Gigs: []models.Gig{}}, nil
}

func (s *stubGigs) Deactivate(ctx context.Context, sellerID, gigID uuid.UUID) error {
	s.deactivated = gigID
	return nil
}

func TestGigCreate(t *testing.T) {
	svc := &stubGigs{}
	body := `{"title":"Logo design","price":"100.00","delivery_days":3,"response_time_hours":24}`
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/gigs", strings.NewReader(body)), uuid.New())
	resp := httptest.NewRecorder()
	GigCreate(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	require.NotNil(t, svc.created)
	assert.True(t, svc.created.Price.Equal(decimal.RequireFromString("100")))
	assert.Equal(t, 24, svc.created.ResponseTimeHours)
}

func TestGigDetailNotFound(t *testing.T) {
	req := addRouteParam(httptest.NewRequest(http.MethodGet, "/api/v1/gigs/x", nil), "gigId", uuid.NewString())
	resp := httptest.NewRecorder()
	GigDetail(&stubGigs{}, testLogger())(resp, req)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestGigListForwardsSeller(t *testing.T) {
	svc := &stubGigs{}
	seller := uuid.NewString()
	resp := httptest.NewRecorder()
	GigList(svc, testLogger())(resp, httptest.NewRequest(http.MethodGet, "/api/v1/gigs?seller_id="+seller, nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, seller, svc.listInput.Seller)
}

func TestGigDeactivate(t *testing.T) {
	svc := &stubGigs{}
	gigID := uuid.New()
	req := withUser(httptest.NewRequest(http.MethodDelete, "/api/v1/gigs/x", nil), uuid.New())
	req = addRouteParam(req, "gigId", gigID.String())
	resp := httptest.NewRecorder()
	GigDeactivate(svc, testLogger())(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, gigID, svc.deactivated)
}
