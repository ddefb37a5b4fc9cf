package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jamm-events/backend/internal/models"
)

// ErrOrderNotFound is returned when an order does not exist.
var ErrOrderNotFound = errors.New("order not found")

const orderColumns = `id, event_id, user_id, buyer_email, COALESCE(buyer_name,''), COALESCE(buyer_phone,''),
	COALESCE(buyer_document,''), COALESCE(buyer_country,''), lines, total, service_fee, rrpp,
	COALESCE(fingerprint,''), status, payment_id, created_at, updated_at`

// Repository persists pending order contexts for the deferred paid path.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a checkout orders repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new order. The caller assigns the ID, which doubles
// as the provider external_reference.
func (r *Repository) Create(ctx context.Context, o *models.CheckoutOrder) error {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("marshal lines: %w", err)
	}
	const q = `INSERT INTO checkout_orders
		(id, event_id, user_id, buyer_email, buyer_name, buyer_phone, buyer_document, buyer_country,
		 lines, total, service_fee, rrpp, fingerprint, status)
		VALUES ($1, $2, $3, $4, NULLIF($5,''), NULLIF($6,''), NULLIF($7,''), NULLIF($8,''),
		        $9, $10, $11, $12, NULLIF($13,''), $14)
		RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, q, o.ID, o.EventID, o.UserID, o.BuyerEmail, o.BuyerName, o.BuyerPhone,
		o.BuyerDoc, o.BuyerCountry, lines, o.Total, o.ServiceFee, o.RRPPCode, o.Fingerprint, string(o.Status)).
		Scan(&o.CreatedAt, &o.UpdatedAt)
}

// GetByID returns an order by ID (the provider external_reference).
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.CheckoutOrder, error) {
	const q = `SELECT ` + orderColumns + ` FROM checkout_orders WHERE id = $1`
	return r.scanOrder(r.pool.QueryRow(ctx, q, id))
}

// GetByPaymentID returns the order already reconciled against a provider
// payment id, if any.
func (r *Repository) GetByPaymentID(ctx context.Context, paymentID string) (*models.CheckoutOrder, error) {
	const q = `SELECT ` + orderColumns + ` FROM checkout_orders WHERE payment_id = $1`
	return r.scanOrder(r.pool.QueryRow(ctx, q, paymentID))
}

// ClaimPayment binds a provider payment id to a pending order before any
// inventory moves. The conditional update makes the claim exclusive: a
// second payment id can never attach to the same order, and re-claiming
// with the same id (a provider retry) succeeds.
func (r *Repository) ClaimPayment(ctx context.Context, id uuid.UUID, paymentID string) (bool, error) {
	const q = `UPDATE checkout_orders SET payment_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND (payment_id IS NULL OR payment_id = $2)`
	tag, err := r.pool.Exec(ctx, q, id, paymentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetStatus records the reconciliation outcome and the provider payment
// id on the order.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus, paymentID *string) error {
	const q = `UPDATE checkout_orders SET status = $1, payment_id = COALESCE($2, payment_id), updated_at = NOW()
		WHERE id = $3`
	tag, err := r.pool.Exec(ctx, q, string(status), paymentID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *Repository) scanOrder(row pgx.Row) (*models.CheckoutOrder, error) {
	var o models.CheckoutOrder
	var lines []byte
	var status string
	err := row.Scan(&o.ID, &o.EventID, &o.UserID, &o.BuyerEmail, &o.BuyerName, &o.BuyerPhone,
		&o.BuyerDoc, &o.BuyerCountry, &lines, &o.Total, &o.ServiceFee, &o.RRPPCode,
		&o.Fingerprint, &status, &o.PaymentID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return nil, fmt.Errorf("unmarshal lines: %w", err)
	}
	o.Status = models.OrderStatus(status)
	return &o, nil
}
