package gigs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
	pkgerrors "github.com/gigmarket/gigmarket-backend/pkg/errors"
	"github.com/gigmarket/gigmarket-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service manages seller listings.
type Service struct {
	repo                     *Repository
	defaultResponseTimeHours int
}

// NewService builds the gig service. defaultResponseHours applies when a
// seller does not choose a payment response window.
func NewService(repo *Repository, defaultResponseHours int) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("gig repository required")
	}
	if defaultResponseHours <= 0 {
		defaultResponseHours = 24
	}
	return &Service{repo: repo, defaultResponseTimeHours: defaultResponseHours}, nil
}

func (s *Service) Create(ctx context.Context, sellerID uuid.UUID, input CreateGigInput) (*models.Gig, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if !input.Price.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
	}
	if input.DeliveryDays <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery_days must be positive")
	}
	hours := input.ResponseTimeHours
	if hours <= 0 {
		hours = s.defaultResponseTimeHours
	}

	gig := &models.Gig{
		SellerID:          sellerID,
		Title:             title,
		Description:       strings.TrimSpace(input.Description),
		Price:             input.Price.Round(2),
		DeliveryDays:      input.DeliveryDays,
		ResponseTimeHours: hours,
		IsActive:          true,
	}
	if err := s.repo.Create(ctx, gig); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create gig")
	}
	return gig, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Gig, error) {
	gig, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gig not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gig")
	}
	return gig, nil
}

func (s *Service) List(ctx context.Context, input ListGigsInput) (*GigList, error) {
	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	params := listParams{Limit: input.Limit, Cursor: cursor, ActiveOnly: true}
	if input.Seller != "" {
		sellerID, err := uuid.Parse(input.Seller)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid seller id")
		}
		params.SellerID = &sellerID
	}
	rows, next, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list gigs")
	}
	return &GigList{Gigs: rows, NextCursor: next}, nil
}

// Deactivate hides a gig from the catalog. Existing orders are unaffected.
func (s *Service) Deactivate(ctx context.Context, sellerID, gigID uuid.UUID) error {
	gig, err := s.Get(ctx, gigID)
	if err != nil {
		return err
	}
	if gig.SellerID != sellerID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can deactivate this gig")
	}
	if _, err := s.repo.SetActive(ctx, gigID, sellerID, false); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate gig")
	}
	return nil
}
