package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the state of a checkout attempt.
//
// Paid orders are created pending and resolved only by payment
// reconciliation. sold_out is a distinct terminal state: the charge was
// approved but inventory ran out during the payment window, which needs
// refund handling rather than a retry prompt.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderFailed    OrderStatus = "failed"
	OrderSoldOut   OrderStatus = "sold_out"
)

// OrderLine is one cart line frozen at checkout time.
type OrderLine struct {
	TicketTypeID uuid.UUID       `json:"ticket_type_id"`
	Title        string          `json:"title"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"` // fee-inflated, what the provider charges
}

// CheckoutOrder is the pending order context for the deferred paid path.
// It is keyed by ID (sent to the provider as external_reference) and
// carries everything reconciliation needs to reserve inventory later.
// No inventory is held while an order is pending.
type CheckoutOrder struct {
	ID           uuid.UUID       `json:"id"`
	EventID      uuid.UUID       `json:"event_id"`
	UserID       *uuid.UUID      `json:"user_id,omitempty"`
	BuyerEmail   string          `json:"buyer_email"`
	BuyerName    string          `json:"buyer_name,omitempty"`
	BuyerPhone   string          `json:"buyer_phone,omitempty"`
	BuyerDoc     string          `json:"buyer_document,omitempty"`
	BuyerCountry string          `json:"buyer_country,omitempty"`
	Lines        []OrderLine     `json:"lines"`
	Total        decimal.Decimal `json:"total"`
	ServiceFee   decimal.Decimal `json:"service_fee"` // display value, derived
	RRPPCode     *string         `json:"rrpp,omitempty"`
	Fingerprint  string          `json:"device_fingerprint,omitempty"`
	Status       OrderStatus     `json:"status"`
	PaymentID    *string         `json:"payment_id,omitempty"` // provider payment id, set at reconciliation
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
