package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event represents a ticketed event owned by an organizer.
type Event struct {
	ID                uuid.UUID       `json:"id"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	StartsAt          time.Time       `json:"starts_at"`
	Location          string          `json:"location"`
	CreatorID         uuid.UUID       `json:"creator_id"`
	MaxTicketsPerUser int             `json:"max_tickets_per_user"`
	SalesEndAt        *time.Time      `json:"sales_end_at,omitempty"`
	MarketplaceFee    decimal.Decimal `json:"marketplace_fee"` // percent surcharge on base price
	Active            bool            `json:"active"`
	ImageURL          string          `json:"image_url,omitempty"`
	ImageKey          string          `json:"-"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// SalesOpen reports whether tickets can still be sold for the event.
func (e *Event) SalesOpen(now time.Time) bool {
	if !e.Active {
		return false
	}
	if e.SalesEndAt != nil && now.After(*e.SalesEndAt) {
		return false
	}
	return true
}
