package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jamm-events/backend/internal/models"
	"github.com/jamm-events/backend/internal/monitoring"
	"github.com/jamm-events/backend/internal/realtime"
	"github.com/jamm-events/backend/internal/tickets"
	"github.com/jamm-events/backend/pkg/queue"
)

var (
	// ErrEmptyCart is returned for a checkout with no purchasable lines.
	ErrEmptyCart = errors.New("empty cart")
	// ErrSalesClosed is returned when the event is inactive or past its
	// sales end.
	ErrSalesClosed = errors.New("ticket sales closed")
	// ErrPurchaseLimit is returned when the cart would push the buyer
	// past the event's per-user ticket cap.
	ErrPurchaseLimit = errors.New("per-user ticket limit exceeded")
	// ErrCourtesyNotGrantable is returned when a courtesy type shows up
	// in a regular checkout cart. Courtesy seats are issued by the
	// organizer through the grant endpoint only.
	ErrCourtesyNotGrantable = errors.New("courtesy tickets cannot be purchased")
	// ErrNotGrantable is returned when a grant targets a priced,
	// non-courtesy ticket type.
	ErrNotGrantable = errors.New("ticket type is not grantable")
)

// Ledger is the inventory side of checkout.
type Ledger interface {
	Reserve(ctx context.Context, p tickets.ReserveParams) (*models.PurchasedTicket, error)
	GetTicketType(ctx context.Context, id uuid.UUID) (*models.TicketType, error)
	CountConfirmedForBuyer(ctx context.Context, eventID uuid.UUID, email string) (int, error)
	PurchasesByPaymentID(ctx context.Context, paymentID string) ([]models.PurchasedTicket, error)
}

// EventStore loads events.
type EventStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// OrderStore persists pending order contexts.
type OrderStore interface {
	Create(ctx context.Context, o *models.CheckoutOrder) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.CheckoutOrder, error)
	SetStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus, paymentID *string) error
}

// ReferralResolver validates referral codes at attribution time.
type ReferralResolver interface {
	ResolveCode(ctx context.Context, code string) (bool, error)
}

// PaymentInitiator turns a payment request into a provider redirect URL.
type PaymentInitiator interface {
	CreatePreference(ctx context.Context, req models.PaymentRequest) (string, error)
}

// Enqueuer hands ticket email jobs to the worker.
type Enqueuer interface {
	EnqueueTicketEmail(ctx context.Context, payload queue.TicketEmailPayload) error
}

// SaleBroadcaster pushes confirmed sales to event dashboards.
type SaleBroadcaster interface {
	PublishSale(ctx context.Context, sale realtime.Sale) error
}

// Service orchestrates checkout: the synchronous free path reserves
// inventory immediately; the paid path records a pending order and
// defers reservation to payment reconciliation, so abandoned payment
// sessions never hold stock.
type Service struct {
	events    EventStore
	ledger    Ledger
	orders    OrderStore
	referrals ReferralResolver
	payments  PaymentInitiator
	mail      Enqueuer
	broadcast SaleBroadcaster
	logger    *zap.Logger
}

// NewService creates the checkout orchestrator. mail and broadcast may
// be nil.
func NewService(events EventStore, ledger Ledger, orders OrderStore, referrals ReferralResolver,
	payments PaymentInitiator, mail Enqueuer, broadcast SaleBroadcaster, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		events:    events,
		ledger:    ledger,
		orders:    orders,
		referrals: referrals,
		payments:  payments,
		mail:      mail,
		broadcast: broadcast,
		logger:    logger,
	}
}

// CartItem is one requested line.
type CartItem struct {
	TicketTypeID uuid.UUID `json:"ticket_type_id"`
	Quantity     int       `json:"quantity"`
}

// Input describes one checkout attempt. UserID is nil for guests.
type Input struct {
	EventID     uuid.UUID
	Items       []CartItem
	UserID      *uuid.UUID
	Email       string
	Name        string
	Phone       string
	Document    string
	Country     string
	RRPPCode    string
	Fingerprint string
}

// Result is the checkout outcome. Direct carries the already-confirmed
// purchases of the free path; otherwise OrderID and RedirectURL describe
// the pending paid order.
type Result struct {
	Direct      bool                     `json:"direct"`
	Purchases   []models.PurchasedTicket `json:"purchases,omitempty"`
	OrderID     uuid.UUID                `json:"order_id,omitempty"`
	RedirectURL string                   `json:"redirect_url,omitempty"`
	Total       decimal.Decimal          `json:"total"`
	ServiceFee  decimal.Decimal          `json:"service_fee"`
}

type pricedLine struct {
	ticketType *models.TicketType
	quantity   int
	unitPrice  decimal.Decimal // fee-inflated
	total      decimal.Decimal
}

// Checkout runs one checkout attempt.
func (s *Service) Checkout(ctx context.Context, in Input) (*Result, error) {
	if len(in.Items) == 0 {
		return nil, ErrEmptyCart
	}
	for _, it := range in.Items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: invalid quantity %d", ErrEmptyCart, it.Quantity)
		}
	}

	event, err := s.events.GetByID(ctx, in.EventID)
	if err != nil {
		return nil, err
	}
	if !event.SalesOpen(time.Now()) {
		return nil, ErrSalesClosed
	}

	fee := event.MarketplaceFee
	lines := make([]pricedLine, 0, len(in.Items))
	subtotal := decimal.Zero
	requested := 0
	for _, it := range in.Items {
		tt, err := s.ledger.GetTicketType(ctx, it.TicketTypeID)
		if err != nil {
			return nil, err
		}
		if !tt.Active || tt.EventID != event.ID {
			return nil, tickets.ErrTicketTypeNotFound
		}
		if tt.IsCourtesy() {
			return nil, ErrCourtesyNotGrantable
		}
		unit := UnitWithFee(tt.Price, fee)
		lines = append(lines, pricedLine{
			ticketType: tt,
			quantity:   it.Quantity,
			unitPrice:  unit,
			total:      LineTotal(tt.Price, it.Quantity, fee),
		})
		subtotal = subtotal.Add(tt.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		requested += it.Quantity
	}

	if event.MaxTicketsPerUser > 0 {
		held, err := s.ledger.CountConfirmedForBuyer(ctx, event.ID, in.Email)
		if err != nil {
			return nil, err
		}
		if held+requested > event.MaxTicketsPerUser {
			return nil, ErrPurchaseLimit
		}
	}

	rrpp := s.resolveReferral(ctx, in.RRPPCode)

	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.total)
	}
	serviceFee := ServiceFeeAmount(subtotal, fee)

	if total.IsZero() {
		return s.checkoutFree(ctx, event, lines, in, rrpp)
	}
	return s.checkoutPaid(ctx, event, lines, in, rrpp, total, serviceFee)
}

// checkoutFree reserves zero-price lines immediately; there is nothing
// to collect, so the tickets confirm on the spot.
func (s *Service) checkoutFree(ctx context.Context, event *models.Event, lines []pricedLine, in Input, rrpp *string) (*Result, error) {
	purchases := make([]models.PurchasedTicket, 0, len(lines))
	for _, l := range lines {
		pt, err := s.ledger.Reserve(ctx, tickets.ReserveParams{
			TicketTypeID: l.ticketType.ID,
			UserID:       in.UserID,
			Email:        in.Email,
			Quantity:     l.quantity,
			TotalPrice:   decimal.Zero,
			Status:       models.PaymentConfirmed,
			RRPPCode:     rrpp,
		})
		if err != nil {
			monitoring.ObserveCheckout("free", "error")
			return nil, err
		}
		purchases = append(purchases, *pt)
	}

	s.notifySale(ctx, event, purchases, queue.EmailTypeTicketConfirmation, in.Email)
	monitoring.ObserveCheckout("free", "ok")
	return &Result{
		Direct:     true,
		Purchases:  purchases,
		Total:      decimal.Zero,
		ServiceFee: decimal.Zero,
	}, nil
}

// checkoutPaid records the pending order and sends the buyer to the
// provider. No inventory moves until reconciliation.
func (s *Service) checkoutPaid(ctx context.Context, event *models.Event, lines []pricedLine, in Input,
	rrpp *string, total, serviceFee decimal.Decimal) (*Result, error) {
	order := &models.CheckoutOrder{
		ID:           uuid.New(),
		EventID:      event.ID,
		UserID:       in.UserID,
		BuyerEmail:   in.Email,
		BuyerName:    in.Name,
		BuyerPhone:   in.Phone,
		BuyerDoc:     in.Document,
		BuyerCountry: in.Country,
		Total:        total,
		ServiceFee:   serviceFee,
		RRPPCode:     rrpp,
		Fingerprint:  in.Fingerprint,
		Status:       models.OrderPending,
	}
	items := make([]models.PaymentLineItem, 0, len(lines))
	for _, l := range lines {
		order.Lines = append(order.Lines, models.OrderLine{
			TicketTypeID: l.ticketType.ID,
			Title:        l.ticketType.Type,
			Quantity:     l.quantity,
			UnitPrice:    l.unitPrice,
		})
		items = append(items, models.PaymentLineItem{
			Title:     fmt.Sprintf("%s - %s", event.Name, l.ticketType.Type),
			Quantity:  l.quantity,
			UnitPrice: l.unitPrice,
		})
	}
	if err := s.orders.Create(ctx, order); err != nil {
		monitoring.ObserveCheckout("paid", "error")
		return nil, fmt.Errorf("create order: %w", err)
	}

	redirectURL, err := s.payments.CreatePreference(ctx, models.PaymentRequest{
		ExternalReference: order.ID,
		BuyerEmail:        in.Email,
		BuyerName:         in.Name,
		EventID:           event.ID,
		Items:             items,
		ServiceFee:        serviceFee,
		RRPPCode:          rrpp,
		Fingerprint:       in.Fingerprint,
	})
	if err != nil {
		if serr := s.orders.SetStatus(ctx, order.ID, models.OrderFailed, nil); serr != nil {
			s.logger.Error("mark order failed", zap.Error(serr), zap.String("order_id", order.ID.String()))
		}
		monitoring.ObserveCheckout("paid", "error")
		return nil, fmt.Errorf("payment initiation: %w", err)
	}

	monitoring.ObserveCheckout("paid", "ok")
	return &Result{
		OrderID:     order.ID,
		RedirectURL: redirectURL,
		Total:       total,
		ServiceFee:  serviceFee,
	}, nil
}

// GrantInput describes an organizer-issued courtesy grant.
type GrantInput struct {
	TicketTypeID uuid.UUID
	Email        string
	Quantity     int
	RRPPCode     string
}

// Grant issues courtesy tickets directly. The ledger skips the
// availability check for courtesy types, so a grant never fails for
// stock; the per-user cap does not apply either.
func (s *Service) Grant(ctx context.Context, eventID uuid.UUID, in GrantInput) (*models.PurchasedTicket, error) {
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("%w: invalid quantity %d", ErrEmptyCart, in.Quantity)
	}
	tt, err := s.ledger.GetTicketType(ctx, in.TicketTypeID)
	if err != nil {
		return nil, err
	}
	if !tt.Active || tt.EventID != eventID {
		return nil, tickets.ErrTicketTypeNotFound
	}
	if !tt.IsCourtesy() && !tt.IsFree() {
		return nil, fmt.Errorf("%w: %s", ErrNotGrantable, tt.Type)
	}
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	rrpp := s.resolveReferral(ctx, in.RRPPCode)
	pt, err := s.ledger.Reserve(ctx, tickets.ReserveParams{
		TicketTypeID: in.TicketTypeID,
		Email:        in.Email,
		Quantity:     in.Quantity,
		TotalPrice:   decimal.Zero,
		Status:       models.PaymentConfirmed,
		RRPPCode:     rrpp,
	})
	if err != nil {
		return nil, err
	}

	s.notifySale(ctx, event, []models.PurchasedTicket{*pt}, queue.EmailTypeCourtesyGrant, in.Email)
	return pt, nil
}

// resolveReferral keeps a referral code only when it matches a known
// RRPP. Unknown codes are dropped, not fatal.
// OrderLookup is the guest-facing view of an order: its state plus the
// confirmed tickets once reconciliation went through.
type OrderLookup struct {
	OrderID uuid.UUID                `json:"order_id"`
	Status  models.OrderStatus       `json:"status"`
	Tickets []models.PurchasedTicket `json:"tickets,omitempty"`
}

// LookupOrder lets a guest retrieve an order by id and buyer email. A
// wrong email answers not-found so the endpoint never confirms an order
// id exists for someone else's address.
func (s *Service) LookupOrder(ctx context.Context, orderID uuid.UUID, email string) (*OrderLookup, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(o.BuyerEmail, email) {
		return nil, ErrOrderNotFound
	}

	out := &OrderLookup{OrderID: o.ID, Status: o.Status}
	if o.Status == models.OrderConfirmed && o.PaymentID != nil {
		tks, err := s.ledger.PurchasesByPaymentID(ctx, *o.PaymentID)
		if err != nil {
			return nil, fmt.Errorf("purchases lookup: %w", err)
		}
		out.Tickets = tks
	}
	return out, nil
}

func (s *Service) resolveReferral(ctx context.Context, code string) *string {
	if code == "" || s.referrals == nil {
		return nil
	}
	ok, err := s.referrals.ResolveCode(ctx, code)
	if err != nil {
		s.logger.Warn("referral lookup failed", zap.Error(err), zap.String("code", code))
		return nil
	}
	if !ok {
		s.logger.Debug("unknown referral code dropped", zap.String("code", code))
		return nil
	}
	return &code
}

// notifySale enqueues the ticket email and pushes the sale to the event
// dashboard. Both are best effort; the reservation already committed.
func (s *Service) notifySale(ctx context.Context, event *models.Event, purchases []models.PurchasedTicket, emailType, recipient string) {
	if s.mail != nil {
		ids := make([]uuid.UUID, 0, len(purchases))
		for _, p := range purchases {
			ids = append(ids, p.ID)
		}
		err := s.mail.EnqueueTicketEmail(ctx, queue.TicketEmailPayload{
			EmailType:   emailType,
			EventID:     event.ID,
			PurchaseIDs: ids,
			Recipient:   recipient,
		})
		if err != nil {
			s.logger.Error("enqueue ticket email", zap.Error(err), zap.String("recipient", recipient))
		}
	}
	if s.broadcast != nil {
		for _, p := range purchases {
			err := s.broadcast.PublishSale(ctx, realtime.Sale{
				EventID:      event.ID,
				TicketTypeID: p.TicketTypeID,
				Quantity:     p.Quantity,
				Total:        p.TotalPrice,
			})
			if err != nil {
				s.logger.Warn("publish sale", zap.Error(err))
			}
		}
	}
}
