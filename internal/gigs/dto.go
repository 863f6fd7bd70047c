package gigs

import (
	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
	"github.com/shopspring/decimal"
)

// CreateGigInput is the payload for publishing a gig.
type CreateGigInput struct {
	Title             string          `json:"title" validate:"required,min=3,max=120"`
	Description       string          `json:"description" validate:"max=5000"`
	Price             decimal.Decimal `json:"price" validate:"required"`
	DeliveryDays      int             `json:"delivery_days" validate:"required,min=1,max=90"`
	ResponseTimeHours int             `json:"response_time_hours" validate:"omitempty,min=1,max=720"`
}

// ListGigsInput filters the catalog.
type ListGigsInput struct {
	Limit  int
	Cursor string
	Seller string
}

// GigList is one page of gigs.
type GigList struct {
	Gigs       []models.Gig `json:"gigs"`
	NextCursor string       `json:"next_cursor,omitempty"`
}
