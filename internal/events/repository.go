package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/jamm-events/backend/internal/models"
)

// ErrEventNotFound is returned when an event does not exist.
var ErrEventNotFound = errors.New("event not found")

const eventColumns = `id, name, description, starts_at, location, creator_id, max_tickets_per_user,
	sales_end_at, marketplace_fee, active, COALESCE(image_url,''), COALESCE(image_key,''), created_at, updated_at`

// Repository handles event persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an events repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new event.
func (r *Repository) Create(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events (name, description, starts_at, location, creator_id, max_tickets_per_user, sales_end_at, marketplace_fee)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, active, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, e.Name, e.Description, e.StartsAt, e.Location, e.CreatorID,
		e.MaxTicketsPerUser, e.SalesEndAt, e.MarketplaceFee).
		Scan(&e.ID, &e.Active, &e.CreatedAt, &e.UpdatedAt)
}

// GetByID returns an event by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	var e models.Event
	err := r.pool.QueryRow(ctx, q, id).Scan(&e.ID, &e.Name, &e.Description, &e.StartsAt, &e.Location,
		&e.CreatorID, &e.MaxTicketsPerUser, &e.SalesEndAt, &e.MarketplaceFee, &e.Active,
		&e.ImageURL, &e.ImageKey, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &e, nil
}

// List returns events, optionally filtered by creator. When activeOnly
// is set, deactivated events are excluded.
func (r *Repository) List(ctx context.Context, createdBy *uuid.UUID, activeOnly bool) ([]models.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events`
	var args []interface{}
	var cond string
	if createdBy != nil {
		cond = ` WHERE creator_id = $1`
		args = append(args, *createdBy)
	}
	if activeOnly {
		if cond == "" {
			cond = ` WHERE active`
		} else {
			cond += ` AND active`
		}
	}
	rows, err := r.pool.Query(ctx, q+cond+` ORDER BY starts_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.StartsAt, &e.Location,
			&e.CreatorID, &e.MaxTicketsPerUser, &e.SalesEndAt, &e.MarketplaceFee, &e.Active,
			&e.ImageURL, &e.ImageKey, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// Update updates mutable scheduling/media fields. Identity (id, creator)
// is immutable.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, name, description, location string,
	startsAt, salesEndAt *time.Time, maxTicketsPerUser *int, marketplaceFee *decimal.Decimal) error {
	const q = `UPDATE events SET
		name = COALESCE(NULLIF($1,''), name),
		description = COALESCE(NULLIF($2,''), description),
		location = COALESCE(NULLIF($3,''), location),
		starts_at = COALESCE($4, starts_at),
		sales_end_at = COALESCE($5, sales_end_at),
		max_tickets_per_user = COALESCE($6, max_tickets_per_user),
		marketplace_fee = COALESCE($7, marketplace_fee),
		updated_at = NOW()
		WHERE id = $8`
	tag, err := r.pool.Exec(ctx, q, name, description, location, startsAt, salesEndAt, maxTicketsPerUser, marketplaceFee, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// SetImage stores the uploaded image URL and object key.
func (r *Repository) SetImage(ctx context.Context, id uuid.UUID, url, key string) error {
	const q = `UPDATE events SET image_url = $1, image_key = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.pool.Exec(ctx, q, url, key, id)
	return err
}

// Deactivate soft-deletes an event. Events are never hard-deleted.
func (r *Repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE events SET active = FALSE, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}
