package tickets

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/jamm-events/backend/internal/models"
	"github.com/jamm-events/backend/internal/monitoring"
)

var (
	// ErrTicketTypeNotFound is returned when the ticket type does not
	// exist or is no longer active.
	ErrTicketTypeNotFound = errors.New("ticket type not found")
	// ErrInsufficientInventory is returned when the requested quantity
	// exceeds the remaining stock of the ticket type.
	ErrInsufficientInventory = errors.New("insufficient inventory")
)

const uniqueViolation = "23505"

const qrInsertAttempts = 3

const purchaseColumns = `id, ticket_type_id, user_id, email, quantity, total_price, qr_code, payment_status, payment_id, rrpp, purchased_at, active`

// Repository is the inventory ledger: the only writer of ticket type
// quantities and purchase records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a tickets repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ReserveParams describes one reservation: quantity units of a ticket
// type for a buyer, at a frozen total price.
type ReserveParams struct {
	TicketTypeID uuid.UUID
	UserID       *uuid.UUID // nil for guest purchases
	Email        string
	Quantity     int
	TotalPrice   decimal.Decimal
	Status       models.PaymentStatus
	PaymentID    *string
	RRPPCode     *string
}

// Reserve atomically checks and decrements the remaining quantity of a
// ticket type and records the purchase. The check-and-decrement and the
// insert commit together; concurrent reservations for the same type can
// never oversell. Courtesy types skip the availability check (and the
// decrement) but go through the same recording path.
func (r *Repository) Reserve(ctx context.Context, p ReserveParams) (*models.PurchasedTicket, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		monitoring.ObserveReservation("error")
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	pt, err := r.reserveLine(ctx, tx, p)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		monitoring.ObserveReservation("error")
		return nil, fmt.Errorf("commit: %w", err)
	}
	monitoring.ObserveReservation("ok")
	return pt, nil
}

// ReserveAll reserves every line inside one transaction: either all
// lines commit or none do. Any failure, including sold-out on a later
// line, leaves the inventory untouched.
func (r *Repository) ReserveAll(ctx context.Context, params []ReserveParams) ([]models.PurchasedTicket, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		monitoring.ObserveReservation("error")
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	purchases := make([]models.PurchasedTicket, 0, len(params))
	for _, p := range params {
		pt, err := r.reserveLine(ctx, tx, p)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, *pt)
	}

	if err := tx.Commit(ctx); err != nil {
		monitoring.ObserveReservation("error")
		return nil, fmt.Errorf("commit: %w", err)
	}
	monitoring.ObserveReservation("ok")
	return purchases, nil
}

// reserveLine runs the check-and-decrement plus purchase insert for one
// line inside the caller's transaction.
func (r *Repository) reserveLine(ctx context.Context, tx pgx.Tx, p ReserveParams) (*models.PurchasedTicket, error) {
	if p.Quantity <= 0 {
		return nil, fmt.Errorf("invalid quantity %d", p.Quantity)
	}

	var tt models.TicketType
	const sel = `SELECT id, event_id, type, price, quantity, active FROM ticket_types WHERE id = $1`
	err := tx.QueryRow(ctx, sel, p.TicketTypeID).
		Scan(&tt.ID, &tt.EventID, &tt.Type, &tt.Price, &tt.Quantity, &tt.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			monitoring.ObserveReservation("not_found")
			return nil, ErrTicketTypeNotFound
		}
		monitoring.ObserveReservation("error")
		return nil, fmt.Errorf("load ticket type: %w", err)
	}
	if !tt.Active {
		monitoring.ObserveReservation("not_found")
		return nil, ErrTicketTypeNotFound
	}

	if !tt.IsCourtesy() {
		// Single conditional update is the oversell guard: the quantity
		// check and the decrement are one statement.
		tag, err := tx.Exec(ctx,
			`UPDATE ticket_types SET quantity = quantity - $2, updated_at = NOW() WHERE id = $1 AND quantity >= $2`,
			p.TicketTypeID, p.Quantity)
		if err != nil {
			monitoring.ObserveReservation("error")
			return nil, fmt.Errorf("decrement quantity: %w", err)
		}
		if tag.RowsAffected() == 0 {
			monitoring.ObserveReservation("insufficient_inventory")
			return nil, ErrInsufficientInventory
		}
	}

	pt, err := r.insertPurchase(ctx, tx, tt.EventID, p)
	if err != nil {
		monitoring.ObserveReservation("error")
		return nil, err
	}
	return pt, nil
}

// insertPurchase inserts the purchase row, regenerating the QR token on
// the (vanishingly rare) unique-constraint collision.
func (r *Repository) insertPurchase(ctx context.Context, tx pgx.Tx, eventID uuid.UUID, p ReserveParams) (*models.PurchasedTicket, error) {
	const ins = `INSERT INTO purchased_tickets (ticket_type_id, user_id, email, quantity, total_price, qr_code, payment_status, payment_id, rrpp, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + purchaseColumns

	status := p.Status
	if status == "" {
		status = models.PaymentPending
	}
	active := status == models.PaymentConfirmed

	var lastErr error
	for attempt := 0; attempt < qrInsertAttempts; attempt++ {
		qr := GenerateQR(p.TicketTypeID, eventID, p.Email)
		var pt models.PurchasedTicket
		err := tx.QueryRow(ctx, ins,
			p.TicketTypeID, p.UserID, p.Email, p.Quantity, p.TotalPrice, qr, string(status), p.PaymentID, p.RRPPCode, active).
			Scan(&pt.ID, &pt.TicketTypeID, &pt.UserID, &pt.Email, &pt.Quantity, &pt.TotalPrice,
				&pt.QRCode, &pt.PaymentStatus, &pt.PaymentID, &pt.RRPPCode, &pt.PurchasedAt, &pt.Active)
		if err == nil {
			return &pt, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			lastErr = err
			continue
		}
		return nil, fmt.Errorf("insert purchase: %w", err)
	}
	return nil, fmt.Errorf("insert purchase after %d qr attempts: %w", qrInsertAttempts, lastErr)
}

// CreateTicketType inserts a new ticket type.
func (r *Repository) CreateTicketType(ctx context.Context, tt *models.TicketType) error {
	const q = `INSERT INTO ticket_types (event_id, type, description, price, quantity, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, tt.EventID, tt.Type, tt.Description, tt.Price, tt.Quantity).
		Scan(&tt.ID, &tt.CreatedAt, &tt.UpdatedAt)
}

// GetTicketType returns a ticket type by ID.
func (r *Repository) GetTicketType(ctx context.Context, id uuid.UUID) (*models.TicketType, error) {
	const q = `SELECT id, event_id, type, description, price, quantity, active, created_at, updated_at
		FROM ticket_types WHERE id = $1`
	var tt models.TicketType
	err := r.pool.QueryRow(ctx, q, id).Scan(&tt.ID, &tt.EventID, &tt.Type, &tt.Description,
		&tt.Price, &tt.Quantity, &tt.Active, &tt.CreatedAt, &tt.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketTypeNotFound
		}
		return nil, err
	}
	return &tt, nil
}

// ListByEvent returns the ticket types of an event. When activeOnly is
// set, soft-deleted types are excluded.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID, activeOnly bool) ([]models.TicketType, error) {
	q := `SELECT id, event_id, type, description, price, quantity, active, created_at, updated_at
		FROM ticket_types WHERE event_id = $1`
	if activeOnly {
		q += ` AND active`
	}
	rows, err := r.pool.Query(ctx, q+` ORDER BY created_at`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.TicketType
	for rows.Next() {
		var tt models.TicketType
		if err := rows.Scan(&tt.ID, &tt.EventID, &tt.Type, &tt.Description,
			&tt.Price, &tt.Quantity, &tt.Active, &tt.CreatedAt, &tt.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, tt)
	}
	return list, rows.Err()
}

// UpdateTicketType updates label, description and price. Quantity is
// owned by the ledger and is not updated here.
func (r *Repository) UpdateTicketType(ctx context.Context, id uuid.UUID, typeLabel, description string, price decimal.Decimal) error {
	const q = `UPDATE ticket_types SET type = $1, description = $2, price = $3, updated_at = NOW() WHERE id = $4`
	tag, err := r.pool.Exec(ctx, q, typeLabel, description, price, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTicketTypeNotFound
	}
	return nil
}

// DeactivateTicketType soft-deletes a ticket type.
func (r *Repository) DeactivateTicketType(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE ticket_types SET active = FALSE, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTicketTypeNotFound
	}
	return nil
}

// AvailableForEvent returns the remaining sellable units of an event.
// Courtesy types are host-granted seats outside the general pool and are
// excluded from the total.
func (r *Repository) AvailableForEvent(ctx context.Context, eventID uuid.UUID) (int, error) {
	const q = `SELECT COALESCE(SUM(quantity), 0) FROM ticket_types
		WHERE event_id = $1 AND active AND type <> $2`
	var total int
	err := r.pool.QueryRow(ctx, q, eventID, models.CourtesyType).Scan(&total)
	return total, err
}

// CountConfirmedForBuyer returns how many units a buyer already holds
// across an event's non-courtesy types, for the per-user cap.
func (r *Repository) CountConfirmedForBuyer(ctx context.Context, eventID uuid.UUID, email string) (int, error) {
	const q = `SELECT COALESCE(SUM(pt.quantity), 0)
		FROM purchased_tickets pt
		JOIN ticket_types tt ON tt.id = pt.ticket_type_id
		WHERE tt.event_id = $1 AND pt.email = $2 AND pt.payment_status = 'confirmed' AND tt.type <> $3`
	var total int
	err := r.pool.QueryRow(ctx, q, eventID, email, models.CourtesyType).Scan(&total)
	return total, err
}

// GetPurchase returns a purchase by ID.
func (r *Repository) GetPurchase(ctx context.Context, id uuid.UUID) (*models.PurchasedTicket, error) {
	const q = `SELECT ` + purchaseColumns + ` FROM purchased_tickets WHERE id = $1`
	return r.scanPurchase(r.pool.QueryRow(ctx, q, id))
}

// GetPurchaseByQR returns a purchase by its QR token (exact match).
func (r *Repository) GetPurchaseByQR(ctx context.Context, qr string) (*models.PurchasedTicket, error) {
	const q = `SELECT ` + purchaseColumns + ` FROM purchased_tickets WHERE qr_code = $1`
	return r.scanPurchase(r.pool.QueryRow(ctx, q, qr))
}

// ListPurchasesByEmail returns confirmed purchases for a buyer email,
// newest first.
func (r *Repository) ListPurchasesByEmail(ctx context.Context, email string) ([]models.PurchasedTicket, error) {
	const q = `SELECT ` + purchaseColumns + ` FROM purchased_tickets
		WHERE email = $1 AND payment_status = 'confirmed' ORDER BY purchased_at DESC`
	rows, err := r.pool.Query(ctx, q, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.PurchasedTicket
	for rows.Next() {
		pt, err := r.scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *pt)
	}
	return list, rows.Err()
}

// PurchasesByPaymentID returns the purchases already recorded for a
// provider payment id, oldest first. Reconciliation uses it to detect a
// reservation that committed before a later step failed.
func (r *Repository) PurchasesByPaymentID(ctx context.Context, paymentID string) ([]models.PurchasedTicket, error) {
	const q = `SELECT ` + purchaseColumns + ` FROM purchased_tickets
		WHERE payment_id = $1 ORDER BY purchased_at`
	rows, err := r.pool.Query(ctx, q, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.PurchasedTicket
	for rows.Next() {
		pt, err := r.scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *pt)
	}
	return list, rows.Err()
}

// Redeem marks a ticket as used for entry. It flips active only; the
// payment status of a redeemed ticket stays confirmed.
func (r *Repository) Redeem(ctx context.Context, qr string) (*models.PurchasedTicket, error) {
	const q = `UPDATE purchased_tickets SET active = FALSE
		WHERE qr_code = $1 AND active AND payment_status = 'confirmed'
		RETURNING ` + purchaseColumns
	return r.scanPurchase(r.pool.QueryRow(ctx, q, qr))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanPurchase(row rowScanner) (*models.PurchasedTicket, error) {
	var pt models.PurchasedTicket
	err := row.Scan(&pt.ID, &pt.TicketTypeID, &pt.UserID, &pt.Email, &pt.Quantity, &pt.TotalPrice,
		&pt.QRCode, &pt.PaymentStatus, &pt.PaymentID, &pt.RRPPCode, &pt.PurchasedAt, &pt.Active)
	if err != nil {
		return nil, err
	}
	return &pt, nil
}
