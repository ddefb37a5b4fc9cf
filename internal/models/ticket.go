package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CourtesyType is the label of host-granted complimentary ticket types.
// Courtesy tickets are exempt from capacity accounting and from the
// per-user purchase cap.
const CourtesyType = "Cortesía"

// TicketType is a sellable ticket category of an event.
type TicketType struct {
	ID          uuid.UUID       `json:"id"`
	EventID     uuid.UUID       `json:"event_id"`
	Type        string          `json:"type"` // label, e.g. "General", "VIP", "Cortesía"
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`    // 0 denotes free/courtesy
	Quantity    int             `json:"quantity"` // remaining sellable units, never negative
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// IsCourtesy reports whether the type is a host-granted courtesy type.
func (t *TicketType) IsCourtesy() bool { return t.Type == CourtesyType }

// IsFree reports whether the type sells at zero price.
func (t *TicketType) IsFree() bool { return t.Price.IsZero() }

// PaymentStatus is the lifecycle state of a purchase's payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentFailed    PaymentStatus = "failed"
)

// PurchasedTicket is one purchase line: quantity units of a ticket type
// bought in a single checkout. qr_code is the opaque entry-validation
// secret; active tracks entry validity independently of payment status
// (a redeemed ticket goes inactive, its payment stays confirmed).
type PurchasedTicket struct {
	ID            uuid.UUID       `json:"id"`
	TicketTypeID  uuid.UUID       `json:"ticket_type_id"`
	UserID        *uuid.UUID      `json:"user_id,omitempty"` // nil for guest purchases
	Email         string          `json:"email"`
	Quantity      int             `json:"quantity"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	QRCode        string          `json:"qr_code"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	PaymentID     *string         `json:"payment_id,omitempty"` // nil + zero price = free grant
	RRPPCode      *string         `json:"rrpp,omitempty"`       // stored referral code at attribution time
	PurchasedAt   time.Time       `json:"purchased_at"`
	Active        bool            `json:"active"`
}

// IsFreeGrant reports whether the ticket was issued outside the payment
// flow (direct grant: zero price and no provider payment id).
func (p *PurchasedTicket) IsFreeGrant() bool {
	return p.TotalPrice.IsZero() && p.PaymentID == nil
}
