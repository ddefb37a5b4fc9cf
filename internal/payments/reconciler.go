package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jamm-events/backend/internal/checkout"
	"github.com/jamm-events/backend/internal/models"
	"github.com/jamm-events/backend/internal/monitoring"
	"github.com/jamm-events/backend/internal/realtime"
	"github.com/jamm-events/backend/internal/tickets"
	"github.com/jamm-events/backend/pkg/queue"
)

// Outcome is the result of reconciling one provider callback.
type Outcome string

const (
	// OutcomeActivated: payment approved, inventory reserved, tickets
	// confirmed and mailed.
	OutcomeActivated Outcome = "activated"
	// OutcomeRejected: payment failed, order marked failed, no tickets.
	OutcomeRejected Outcome = "rejected"
	// OutcomePending: provider still processing, nothing to do yet.
	OutcomePending Outcome = "pending"
	// OutcomeSoldOut: the charge went through but inventory ran out
	// during the payment window. The order needs refund handling.
	OutcomeSoldOut Outcome = "sold_out"
	// OutcomeAlreadyProcessed: duplicate callback for a payment this
	// service already reconciled.
	OutcomeAlreadyProcessed Outcome = "already_processed"
)

// OrderStore is the pending order context side of reconciliation.
type OrderStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.CheckoutOrder, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*models.CheckoutOrder, error)
	ClaimPayment(ctx context.Context, id uuid.UUID, paymentID string) (bool, error)
	SetStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus, paymentID *string) error
}

// Ledger reserves inventory for approved orders.
type Ledger interface {
	ReserveAll(ctx context.Context, params []tickets.ReserveParams) ([]models.PurchasedTicket, error)
	PurchasesByPaymentID(ctx context.Context, paymentID string) ([]models.PurchasedTicket, error)
}

// Enqueuer hands ticket email jobs to the worker.
type Enqueuer interface {
	EnqueueTicketEmail(ctx context.Context, payload queue.TicketEmailPayload) error
}

// SaleBroadcaster pushes confirmed sales to event dashboards.
type SaleBroadcaster interface {
	PublishSale(ctx context.Context, sale realtime.Sale) error
}

// Reconciler finalizes pending orders against provider payment results.
// Inventory was never held for a pending order, so approval triggers the
// real reservation here; a duplicate callback for an already-processed
// payment id is a no-op.
type Reconciler struct {
	orders    OrderStore
	ledger    Ledger
	mail      Enqueuer
	broadcast SaleBroadcaster
	logger    *zap.Logger
}

// NewReconciler creates the payment reconciler. mail and broadcast may
// be nil.
func NewReconciler(orders OrderStore, ledger Ledger, mail Enqueuer, broadcast SaleBroadcaster, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{orders: orders, ledger: ledger, mail: mail, broadcast: broadcast, logger: logger}
}

// Reconcile applies one provider payment result to its order.
func (r *Reconciler) Reconcile(ctx context.Context, res *models.PaymentResult) (Outcome, error) {
	// Idempotency: a payment id reconciles exactly once. A pending
	// order that already carries this payment id is an earlier attempt
	// that failed mid-activation; it falls through so the retry can
	// finish it.
	if prev, err := r.orders.GetByPaymentID(ctx, res.PaymentID); err == nil {
		if prev.Status != models.OrderPending {
			monitoring.ObserveReconciliation("duplicate")
			return OutcomeAlreadyProcessed, nil
		}
	} else if !errors.Is(err, checkout.ErrOrderNotFound) {
		return "", fmt.Errorf("payment lookup: %w", err)
	}

	order, err := r.orders.GetByID(ctx, res.ExternalReference)
	if err != nil {
		monitoring.ObserveReconciliation("error")
		return "", fmt.Errorf("order lookup: %w", err)
	}
	if order.Status != models.OrderPending {
		monitoring.ObserveReconciliation("duplicate")
		return OutcomeAlreadyProcessed, nil
	}

	switch res.Status {
	case models.PaymentResultPending:
		return OutcomePending, nil

	case models.PaymentResultRejected:
		if err := r.orders.SetStatus(ctx, order.ID, models.OrderFailed, &res.PaymentID); err != nil {
			monitoring.ObserveReconciliation("error")
			return "", fmt.Errorf("mark order failed: %w", err)
		}
		monitoring.ObserveReconciliation("rejected")
		r.logger.Info("payment rejected",
			zap.String("order_id", order.ID.String()),
			zap.String("payment_id", res.PaymentID))
		return OutcomeRejected, nil

	case models.PaymentResultApproved:
		return r.activate(ctx, order, res.PaymentID)

	default:
		monitoring.ObserveReconciliation("error")
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, res.Status)
	}
}

// activate confirms the tickets for an approved payment. The payment id
// is claimed on the order first, then every line is reserved in one
// all-or-nothing transaction, so a transient failure plus a provider
// retry can never reserve a line twice. The final availability check
// happens here, not at checkout: if inventory ran out during the payment
// window the order goes sold_out, never silently confirmed.
func (r *Reconciler) activate(ctx context.Context, order *models.CheckoutOrder, paymentID string) (Outcome, error) {
	claimed, err := r.orders.ClaimPayment(ctx, order.ID, paymentID)
	if err != nil {
		monitoring.ObserveReconciliation("error")
		return "", fmt.Errorf("claim payment: %w", err)
	}
	if !claimed {
		monitoring.ObserveReconciliation("duplicate")
		return OutcomeAlreadyProcessed, nil
	}

	// A previous attempt may have reserved the lines and failed before
	// confirming the order. Those purchases are the activation; never
	// reserve again for the same payment id.
	purchases, err := r.ledger.PurchasesByPaymentID(ctx, paymentID)
	if err != nil {
		monitoring.ObserveReconciliation("error")
		return "", fmt.Errorf("purchases lookup: %w", err)
	}
	if len(purchases) == 0 {
		params := make([]tickets.ReserveParams, 0, len(order.Lines))
		for _, line := range order.Lines {
			params = append(params, tickets.ReserveParams{
				TicketTypeID: line.TicketTypeID,
				UserID:       order.UserID,
				Email:        order.BuyerEmail,
				Quantity:     line.Quantity,
				TotalPrice:   line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))),
				Status:       models.PaymentConfirmed,
				PaymentID:    &paymentID,
				RRPPCode:     order.RRPPCode,
			})
		}
		purchases, err = r.ledger.ReserveAll(ctx, params)
		if err != nil {
			if errors.Is(err, tickets.ErrInsufficientInventory) || errors.Is(err, tickets.ErrTicketTypeNotFound) {
				if serr := r.orders.SetStatus(ctx, order.ID, models.OrderSoldOut, &paymentID); serr != nil {
					monitoring.ObserveReconciliation("error")
					return "", fmt.Errorf("mark order sold out: %w", serr)
				}
				monitoring.ObserveReconciliation("sold_out")
				r.logger.Warn("approved payment with no inventory left",
					zap.String("order_id", order.ID.String()),
					zap.String("payment_id", paymentID))
				return OutcomeSoldOut, nil
			}
			// Transient failure: the reservation rolled back and the
			// order stays pending, so the provider retry reconciles
			// again from a clean slate.
			monitoring.ObserveReconciliation("error")
			return "", fmt.Errorf("reserve lines: %w", err)
		}
	}

	if err := r.orders.SetStatus(ctx, order.ID, models.OrderConfirmed, &paymentID); err != nil {
		monitoring.ObserveReconciliation("error")
		return "", fmt.Errorf("mark order confirmed: %w", err)
	}

	if r.mail != nil {
		ids := make([]uuid.UUID, 0, len(purchases))
		for _, p := range purchases {
			ids = append(ids, p.ID)
		}
		err := r.mail.EnqueueTicketEmail(ctx, queue.TicketEmailPayload{
			EmailType:   queue.EmailTypeTicketConfirmation,
			EventID:     order.EventID,
			PurchaseIDs: ids,
			Recipient:   order.BuyerEmail,
		})
		if err != nil {
			r.logger.Error("enqueue ticket email", zap.Error(err), zap.String("order_id", order.ID.String()))
		}
	}
	if r.broadcast != nil {
		for _, p := range purchases {
			err := r.broadcast.PublishSale(ctx, realtime.Sale{
				EventID:      order.EventID,
				TicketTypeID: p.TicketTypeID,
				Quantity:     p.Quantity,
				Total:        p.TotalPrice,
			})
			if err != nil {
				r.logger.Warn("publish sale", zap.Error(err))
			}
		}
	}

	monitoring.ObserveReconciliation("activated")
	r.logger.Info("order confirmed",
		zap.String("order_id", order.ID.String()),
		zap.String("payment_id", paymentID),
		zap.Int("lines", len(purchases)))
	return OutcomeActivated, nil
}
