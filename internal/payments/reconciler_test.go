package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jamm-events/backend/internal/checkout"
	"github.com/jamm-events/backend/internal/models"
	"github.com/jamm-events/backend/internal/tickets"
)

type fakeOrders struct {
	orders        map[uuid.UUID]*models.CheckoutOrder
	byPayment     map[string]uuid.UUID
	failSetStatus error
}

func newFakeOrders(list ...*models.CheckoutOrder) *fakeOrders {
	f := &fakeOrders{
		orders:    make(map[uuid.UUID]*models.CheckoutOrder),
		byPayment: make(map[string]uuid.UUID),
	}
	for _, o := range list {
		f.orders[o.ID] = o
	}
	return f
}

func (f *fakeOrders) GetByID(_ context.Context, id uuid.UUID) (*models.CheckoutOrder, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, checkout.ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeOrders) GetByPaymentID(_ context.Context, paymentID string) (*models.CheckoutOrder, error) {
	id, ok := f.byPayment[paymentID]
	if !ok {
		return nil, checkout.ErrOrderNotFound
	}
	return f.orders[id], nil
}

func (f *fakeOrders) ClaimPayment(_ context.Context, id uuid.UUID, paymentID string) (bool, error) {
	o, ok := f.orders[id]
	if !ok {
		return false, nil
	}
	if o.Status != models.OrderPending {
		return false, nil
	}
	if o.PaymentID != nil && *o.PaymentID != paymentID {
		return false, nil
	}
	o.PaymentID = &paymentID
	f.byPayment[paymentID] = id
	return true, nil
}

func (f *fakeOrders) SetStatus(_ context.Context, id uuid.UUID, status models.OrderStatus, paymentID *string) error {
	if f.failSetStatus != nil {
		err := f.failSetStatus
		f.failSetStatus = nil
		return err
	}
	o, ok := f.orders[id]
	if !ok {
		return checkout.ErrOrderNotFound
	}
	o.Status = status
	if paymentID != nil {
		o.PaymentID = paymentID
		f.byPayment[*paymentID] = id
	}
	return nil
}

// fakeLedger mirrors ReserveAll's all-or-nothing contract: a failing
// line leaves every other line's inventory untouched.
type fakeLedger struct {
	remaining map[uuid.UUID]int
	reserves  []tickets.ReserveParams
	purchases map[string][]models.PurchasedTicket
	failNext  error
}

func (f *fakeLedger) ReserveAll(_ context.Context, params []tickets.ReserveParams) ([]models.PurchasedTicket, error) {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}
	for _, p := range params {
		left, ok := f.remaining[p.TicketTypeID]
		if !ok {
			return nil, tickets.ErrTicketTypeNotFound
		}
		if left < p.Quantity {
			return nil, tickets.ErrInsufficientInventory
		}
	}
	out := make([]models.PurchasedTicket, 0, len(params))
	for _, p := range params {
		f.remaining[p.TicketTypeID] -= p.Quantity
		f.reserves = append(f.reserves, p)
		pt := models.PurchasedTicket{
			ID:            uuid.New(),
			TicketTypeID:  p.TicketTypeID,
			Email:         p.Email,
			Quantity:      p.Quantity,
			TotalPrice:    p.TotalPrice,
			PaymentStatus: p.Status,
			PaymentID:     p.PaymentID,
			RRPPCode:      p.RRPPCode,
			Active:        true,
		}
		out = append(out, pt)
		if p.PaymentID != nil {
			if f.purchases == nil {
				f.purchases = make(map[string][]models.PurchasedTicket)
			}
			f.purchases[*p.PaymentID] = append(f.purchases[*p.PaymentID], pt)
		}
	}
	return out, nil
}

func (f *fakeLedger) PurchasesByPaymentID(_ context.Context, paymentID string) ([]models.PurchasedTicket, error) {
	return f.purchases[paymentID], nil
}

func money(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func pendingOrder(typeID uuid.UUID) *models.CheckoutOrder {
	return &models.CheckoutOrder{
		ID:         uuid.New(),
		EventID:    uuid.New(),
		BuyerEmail: "buyer@example.com",
		Lines: []models.OrderLine{
			{TicketTypeID: typeID, Title: "General", Quantity: 2, UnitPrice: money("55.00")},
		},
		Total:      money("110.00"),
		ServiceFee: money("10.00"),
		Status:     models.OrderPending,
	}
}

func TestDecodeStatus(t *testing.T) {
	for raw, want := range map[string]models.PaymentResultStatus{
		"approved":   models.PaymentResultApproved,
		"accredited": models.PaymentResultApproved,
		"rejected":   models.PaymentResultRejected,
		"in_process": models.PaymentResultPending,
	} {
		got, err := DecodeStatus(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	got, err := DecodeStatus("weird_new_status")
	assert.ErrorIs(t, err, ErrUnknownStatus)
	assert.Equal(t, models.PaymentResultUnknown, got)
}

func TestReconcileApprovedActivates(t *testing.T) {
	typeID := uuid.New()
	order := pendingOrder(typeID)
	orders := newFakeOrders(order)
	ledger := &fakeLedger{remaining: map[uuid.UUID]int{typeID: 10}}
	r := NewReconciler(orders, ledger, nil, nil, zap.NewNop())

	outcome, err := r.Reconcile(context.Background(), &models.PaymentResult{
		PaymentID:         "pay-1",
		Status:            models.PaymentResultApproved,
		ExternalReference: order.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeActivated, outcome)
	assert.Equal(t, models.OrderConfirmed, order.Status)
	require.NotNil(t, order.PaymentID)
	assert.Equal(t, "pay-1", *order.PaymentID)

	require.Len(t, ledger.reserves, 1)
	p := ledger.reserves[0]
	assert.Equal(t, models.PaymentConfirmed, p.Status)
	assert.Equal(t, 2, p.Quantity)
	assert.True(t, p.TotalPrice.Equal(money("110.00")), "total %s", p.TotalPrice)
	require.NotNil(t, p.PaymentID)
	assert.Equal(t, "pay-1", *p.PaymentID)
	assert.Equal(t, 8, ledger.remaining[typeID])
}

func TestReconcileIdempotentDoubleInvoke(t *testing.T) {
	typeID := uuid.New()
	order := pendingOrder(typeID)
	orders := newFakeOrders(order)
	ledger := &fakeLedger{remaining: map[uuid.UUID]int{typeID: 10}}
	r := NewReconciler(orders, ledger, nil, nil, zap.NewNop())

	result := &models.PaymentResult{
		PaymentID:         "pay-dup",
		Status:            models.PaymentResultApproved,
		ExternalReference: order.ID,
	}
	first, err := r.Reconcile(context.Background(), result)
	require.NoError(t, err)
	require.Equal(t, OutcomeActivated, first)

	second, err := r.Reconcile(context.Background(), result)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, second)
	assert.Len(t, ledger.reserves, 1, "duplicate callback must not reserve again")
	assert.Equal(t, 8, ledger.remaining[typeID])
}

func TestReconcileRetryAfterTransientFailureReservesOnce(t *testing.T) {
	typeA, typeB := uuid.New(), uuid.New()
	order := pendingOrder(typeA)
	order.Lines = append(order.Lines,
		models.OrderLine{TicketTypeID: typeB, Title: "VIP", Quantity: 1, UnitPrice: money("110.00")})
	orders := newFakeOrders(order)
	ledger := &fakeLedger{
		remaining: map[uuid.UUID]int{typeA: 10, typeB: 5},
		failNext:  errors.New("connection reset"),
	}
	r := NewReconciler(orders, ledger, nil, nil, zap.NewNop())

	result := &models.PaymentResult{
		PaymentID:         "pay-retry",
		Status:            models.PaymentResultApproved,
		ExternalReference: order.ID,
	}
	_, err := r.Reconcile(context.Background(), result)
	require.Error(t, err)
	assert.Equal(t, models.OrderPending, order.Status, "transient failure must leave the order pending")
	assert.Empty(t, ledger.reserves, "failed attempt must not leave partial reservations")

	outcome, err := r.Reconcile(context.Background(), result)
	require.NoError(t, err)
	assert.Equal(t, OutcomeActivated, outcome)
	assert.Equal(t, models.OrderConfirmed, order.Status)
	require.Len(t, ledger.reserves, 2, "each line reserved exactly once across the retry")
	assert.Equal(t, 8, ledger.remaining[typeA])
	assert.Equal(t, 4, ledger.remaining[typeB])
}

func TestReconcileRetryAfterConfirmFailureReusesPurchases(t *testing.T) {
	typeID := uuid.New()
	order := pendingOrder(typeID)
	orders := newFakeOrders(order)
	orders.failSetStatus = errors.New("connection reset")
	ledger := &fakeLedger{remaining: map[uuid.UUID]int{typeID: 10}}
	r := NewReconciler(orders, ledger, nil, nil, zap.NewNop())

	result := &models.PaymentResult{
		PaymentID:         "pay-confirm-retry",
		Status:            models.PaymentResultApproved,
		ExternalReference: order.ID,
	}
	// Reservation commits but the order confirm fails. The retry must
	// pick up the existing purchases instead of reserving again.
	_, err := r.Reconcile(context.Background(), result)
	require.Error(t, err)
	require.Len(t, ledger.reserves, 1)

	outcome, err := r.Reconcile(context.Background(), result)
	require.NoError(t, err)
	assert.Equal(t, OutcomeActivated, outcome)
	assert.Equal(t, models.OrderConfirmed, order.Status)
	assert.Len(t, ledger.reserves, 1, "retry must not reserve a second time")
	assert.Equal(t, 8, ledger.remaining[typeID])
}

func TestReconcileSoldOutAtReconciliation(t *testing.T) {
	typeID := uuid.New()
	order := pendingOrder(typeID)
	orders := newFakeOrders(order)
	// Only 1 unit left for a 2-unit order placed before the sellout.
	ledger := &fakeLedger{remaining: map[uuid.UUID]int{typeID: 1}}
	r := NewReconciler(orders, ledger, nil, nil, zap.NewNop())

	outcome, err := r.Reconcile(context.Background(), &models.PaymentResult{
		PaymentID:         "pay-2",
		Status:            models.PaymentResultApproved,
		ExternalReference: order.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSoldOut, outcome)
	assert.Equal(t, models.OrderSoldOut, order.Status, "sold_out is distinct from failed")
	assert.Empty(t, ledger.reserves)
}

func TestReconcileSoldOutLeavesNoPartialReservation(t *testing.T) {
	typeA, typeB := uuid.New(), uuid.New()
	order := pendingOrder(typeA)
	order.Lines = append(order.Lines,
		models.OrderLine{TicketTypeID: typeB, Title: "VIP", Quantity: 3, UnitPrice: money("110.00")})
	orders := newFakeOrders(order)
	// First line fits, second does not: nothing may be decremented.
	ledger := &fakeLedger{remaining: map[uuid.UUID]int{typeA: 10, typeB: 1}}
	r := NewReconciler(orders, ledger, nil, nil, zap.NewNop())

	outcome, err := r.Reconcile(context.Background(), &models.PaymentResult{
		PaymentID:         "pay-partial",
		Status:            models.PaymentResultApproved,
		ExternalReference: order.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSoldOut, outcome)
	assert.Equal(t, models.OrderSoldOut, order.Status)
	assert.Empty(t, ledger.reserves)
	assert.Equal(t, 10, ledger.remaining[typeA], "first line's inventory must stay intact")
	assert.Equal(t, 1, ledger.remaining[typeB])
}

func TestReconcileRejectedMarksFailed(t *testing.T) {
	typeID := uuid.New()
	order := pendingOrder(typeID)
	orders := newFakeOrders(order)
	ledger := &fakeLedger{remaining: map[uuid.UUID]int{typeID: 10}}
	r := NewReconciler(orders, ledger, nil, nil, zap.NewNop())

	outcome, err := r.Reconcile(context.Background(), &models.PaymentResult{
		PaymentID:         "pay-3",
		Status:            models.PaymentResultRejected,
		ExternalReference: order.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, outcome)
	assert.Equal(t, models.OrderFailed, order.Status)
	assert.Empty(t, ledger.reserves)
}

func TestReconcilePendingLeavesOrderUntouched(t *testing.T) {
	typeID := uuid.New()
	order := pendingOrder(typeID)
	orders := newFakeOrders(order)
	r := NewReconciler(orders, &fakeLedger{remaining: map[uuid.UUID]int{typeID: 10}}, nil, nil, zap.NewNop())

	outcome, err := r.Reconcile(context.Background(), &models.PaymentResult{
		PaymentID:         "pay-4",
		Status:            models.PaymentResultPending,
		ExternalReference: order.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, outcome)
	assert.Equal(t, models.OrderPending, order.Status)
}
