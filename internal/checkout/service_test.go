package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jamm-events/backend/internal/models"
	"github.com/jamm-events/backend/internal/tickets"
)

type fakeLedger struct {
	types     map[uuid.UUID]*models.TicketType
	held      int
	reserves  []tickets.ReserveParams
	byPayment map[string][]models.PurchasedTicket
}

func (f *fakeLedger) PurchasesByPaymentID(_ context.Context, paymentID string) ([]models.PurchasedTicket, error) {
	return f.byPayment[paymentID], nil
}

func (f *fakeLedger) GetTicketType(_ context.Context, id uuid.UUID) (*models.TicketType, error) {
	tt, ok := f.types[id]
	if !ok {
		return nil, tickets.ErrTicketTypeNotFound
	}
	return tt, nil
}

func (f *fakeLedger) CountConfirmedForBuyer(context.Context, uuid.UUID, string) (int, error) {
	return f.held, nil
}

func (f *fakeLedger) Reserve(_ context.Context, p tickets.ReserveParams) (*models.PurchasedTicket, error) {
	tt, ok := f.types[p.TicketTypeID]
	if !ok || !tt.Active {
		return nil, tickets.ErrTicketTypeNotFound
	}
	if !tt.IsCourtesy() {
		if tt.Quantity < p.Quantity {
			return nil, tickets.ErrInsufficientInventory
		}
		tt.Quantity -= p.Quantity
	}
	f.reserves = append(f.reserves, p)
	return &models.PurchasedTicket{
		ID:            uuid.New(),
		TicketTypeID:  p.TicketTypeID,
		UserID:        p.UserID,
		Email:         p.Email,
		Quantity:      p.Quantity,
		TotalPrice:    p.TotalPrice,
		QRCode:        tickets.GenerateQR(p.TicketTypeID, tt.EventID, p.Email),
		PaymentStatus: p.Status,
		PaymentID:     p.PaymentID,
		RRPPCode:      p.RRPPCode,
		Active:        p.Status == models.PaymentConfirmed,
	}, nil
}

type fakeEvents struct {
	events map[uuid.UUID]*models.Event
}

func (f *fakeEvents) GetByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	e, ok := f.events[id]
	if !ok {
		return nil, errors.New("event not found")
	}
	return e, nil
}

type fakeOrders struct {
	created  []*models.CheckoutOrder
	statuses map[uuid.UUID]models.OrderStatus
}

func (f *fakeOrders) Create(_ context.Context, o *models.CheckoutOrder) error {
	f.created = append(f.created, o)
	return nil
}

func (f *fakeOrders) GetByID(_ context.Context, id uuid.UUID) (*models.CheckoutOrder, error) {
	for _, o := range f.created {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, ErrOrderNotFound
}

func (f *fakeOrders) SetStatus(_ context.Context, id uuid.UUID, status models.OrderStatus, _ *string) error {
	if f.statuses == nil {
		f.statuses = make(map[uuid.UUID]models.OrderStatus)
	}
	f.statuses[id] = status
	return nil
}

type fakeReferrals struct {
	known map[string]bool
}

func (f *fakeReferrals) ResolveCode(_ context.Context, code string) (bool, error) {
	return f.known[code], nil
}

type fakePayments struct {
	url     string
	err     error
	lastReq models.PaymentRequest
}

func (f *fakePayments) CreatePreference(_ context.Context, req models.PaymentRequest) (string, error) {
	f.lastReq = req
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

func dec2(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

type fixture struct {
	svc      *Service
	ledger   *fakeLedger
	orders   *fakeOrders
	payments *fakePayments
	event    *models.Event
	general  *models.TicketType
	free     *models.TicketType
	courtesy *models.TicketType
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	eventID := uuid.New()
	event := &models.Event{
		ID:                eventID,
		Name:              "Noche JAMM",
		StartsAt:          time.Now().Add(48 * time.Hour),
		CreatorID:         uuid.New(),
		MaxTicketsPerUser: 10,
		MarketplaceFee:    dec2("10"),
		Active:            true,
	}
	general := &models.TicketType{ID: uuid.New(), EventID: eventID, Type: "General", Price: dec2("50"), Quantity: 100, Active: true}
	free := &models.TicketType{ID: uuid.New(), EventID: eventID, Type: "Free Pass", Price: decimal.Zero, Quantity: 20, Active: true}
	courtesy := &models.TicketType{ID: uuid.New(), EventID: eventID, Type: models.CourtesyType, Price: decimal.Zero, Quantity: 0, Active: true}

	ledger := &fakeLedger{types: map[uuid.UUID]*models.TicketType{
		general.ID:  general,
		free.ID:     free,
		courtesy.ID: courtesy,
	}}
	orders := &fakeOrders{}
	pay := &fakePayments{url: "https://pay.example.com/redirect/abc"}
	referrals := &fakeReferrals{known: map[string]bool{"ABC123": true}}

	svc := NewService(&fakeEvents{events: map[uuid.UUID]*models.Event{eventID: event}},
		ledger, orders, referrals, pay, nil, nil, zap.NewNop())
	return &fixture{svc: svc, ledger: ledger, orders: orders, payments: pay,
		event: event, general: general, free: free, courtesy: courtesy}
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Checkout(context.Background(), Input{EventID: f.event.ID, Email: "a@b.c"})
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckoutSalesClosed(t *testing.T) {
	f := newFixture(t)
	past := time.Now().Add(-time.Hour)
	f.event.SalesEndAt = &past

	_, err := f.svc.Checkout(context.Background(), Input{
		EventID: f.event.ID,
		Items:   []CartItem{{TicketTypeID: f.general.ID, Quantity: 1}},
		Email:   "a@b.c",
	})
	assert.ErrorIs(t, err, ErrSalesClosed)
}

func TestCheckoutFreePathReservesImmediately(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()

	res, err := f.svc.Checkout(context.Background(), Input{
		EventID:  f.event.ID,
		Items:    []CartItem{{TicketTypeID: f.free.ID, Quantity: 2}},
		UserID:   &userID,
		Email:    "buyer@example.com",
		RRPPCode: "ABC123",
	})
	require.NoError(t, err)
	require.True(t, res.Direct)
	require.Len(t, res.Purchases, 1)

	pt := res.Purchases[0]
	assert.Equal(t, models.PaymentConfirmed, pt.PaymentStatus)
	assert.True(t, pt.TotalPrice.IsZero())
	require.NotNil(t, pt.RRPPCode)
	assert.Equal(t, "ABC123", *pt.RRPPCode)
	assert.Equal(t, 18, f.free.Quantity)
	assert.Empty(t, f.orders.created, "free path must not create a pending order")
}

func TestCheckoutPaidPathDefersReservation(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Checkout(context.Background(), Input{
		EventID: f.event.ID,
		Items:   []CartItem{{TicketTypeID: f.general.ID, Quantity: 1}},
		Email:   "guest@example.com",
		Name:    "Guest Buyer",
	})
	require.NoError(t, err)
	assert.False(t, res.Direct)
	assert.Equal(t, "https://pay.example.com/redirect/abc", res.RedirectURL)

	// No inventory moves until reconciliation.
	assert.Empty(t, f.ledger.reserves)
	assert.Equal(t, 100, f.general.Quantity)

	require.Len(t, f.orders.created, 1)
	order := f.orders.created[0]
	assert.Equal(t, models.OrderPending, order.Status)
	require.Len(t, order.Lines, 1)

	// unit 50 fee 10% => charged 55, displayed service fee 5.
	assert.True(t, order.Lines[0].UnitPrice.Equal(dec2("55.00")), "unit %s", order.Lines[0].UnitPrice)
	assert.True(t, res.Total.Equal(dec2("55.00")), "total %s", res.Total)
	assert.True(t, res.ServiceFee.Equal(dec2("5.00")), "fee %s", res.ServiceFee)

	assert.Equal(t, order.ID, f.payments.lastReq.ExternalReference)
	require.Len(t, f.payments.lastReq.Items, 1)
	assert.True(t, f.payments.lastReq.Items[0].UnitPrice.Equal(dec2("55.00")))
}

func TestCheckoutPaidPathProviderFailureMarksOrderFailed(t *testing.T) {
	f := newFixture(t)
	f.payments.err = errors.New("provider down")

	_, err := f.svc.Checkout(context.Background(), Input{
		EventID: f.event.ID,
		Items:   []CartItem{{TicketTypeID: f.general.ID, Quantity: 1}},
		Email:   "guest@example.com",
	})
	require.Error(t, err)
	require.Len(t, f.orders.created, 1)
	assert.Equal(t, models.OrderFailed, f.orders.statuses[f.orders.created[0].ID])
}

func TestCheckoutPurchaseLimit(t *testing.T) {
	f := newFixture(t)
	f.event.MaxTicketsPerUser = 3
	f.ledger.held = 2

	_, err := f.svc.Checkout(context.Background(), Input{
		EventID: f.event.ID,
		Items:   []CartItem{{TicketTypeID: f.general.ID, Quantity: 2}},
		Email:   "buyer@example.com",
	})
	assert.ErrorIs(t, err, ErrPurchaseLimit)
}

func TestCheckoutUnknownReferralDropped(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Checkout(context.Background(), Input{
		EventID:  f.event.ID,
		Items:    []CartItem{{TicketTypeID: f.free.ID, Quantity: 1}},
		Email:    "buyer@example.com",
		RRPPCode: "NOPE",
	})
	require.NoError(t, err)
	require.Len(t, res.Purchases, 1)
	assert.Nil(t, res.Purchases[0].RRPPCode)
}

func TestCheckoutRejectsCourtesyInCart(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Checkout(context.Background(), Input{
		EventID: f.event.ID,
		Items:   []CartItem{{TicketTypeID: f.courtesy.ID, Quantity: 1}},
		Email:   "buyer@example.com",
	})
	assert.ErrorIs(t, err, ErrCourtesyNotGrantable)
}

func TestGrantCourtesyIgnoresStock(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, 0, f.courtesy.Quantity)

	pt, err := f.svc.Grant(context.Background(), f.event.ID, GrantInput{
		TicketTypeID: f.courtesy.ID,
		Email:        "vip@example.com",
		Quantity:     4,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentConfirmed, pt.PaymentStatus)
	assert.True(t, pt.IsFreeGrant())
	assert.Equal(t, 0, f.courtesy.Quantity, "courtesy grants never touch the pool")
}

func TestLookupOrderReturnsTicketsWhenConfirmed(t *testing.T) {
	f := newFixture(t)
	payID := "pay-9"
	order := &models.CheckoutOrder{
		ID:         uuid.New(),
		EventID:    f.event.ID,
		BuyerEmail: "guest@example.com",
		Status:     models.OrderConfirmed,
		PaymentID:  &payID,
	}
	f.orders.created = append(f.orders.created, order)
	f.ledger.byPayment = map[string][]models.PurchasedTicket{
		payID: {{ID: uuid.New(), TicketTypeID: f.general.ID, Quantity: 2, PaymentStatus: models.PaymentConfirmed}},
	}

	lookup, err := f.svc.LookupOrder(context.Background(), order.ID, "Guest@Example.com")
	require.NoError(t, err)
	assert.Equal(t, models.OrderConfirmed, lookup.Status)
	require.Len(t, lookup.Tickets, 1)
	assert.Equal(t, 2, lookup.Tickets[0].Quantity)
}

func TestLookupOrderRejectsWrongEmail(t *testing.T) {
	f := newFixture(t)
	order := &models.CheckoutOrder{
		ID:         uuid.New(),
		EventID:    f.event.ID,
		BuyerEmail: "guest@example.com",
		Status:     models.OrderPending,
	}
	f.orders.created = append(f.orders.created, order)

	_, err := f.svc.LookupOrder(context.Background(), order.ID, "other@example.com")
	assert.ErrorIs(t, err, ErrOrderNotFound, "wrong email must not reveal the order")
}

func TestGrantRejectsPricedType(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Grant(context.Background(), f.event.ID, GrantInput{
		TicketTypeID: f.general.ID,
		Email:        "vip@example.com",
		Quantity:     1,
	})
	assert.ErrorIs(t, err, ErrNotGrantable)
}
