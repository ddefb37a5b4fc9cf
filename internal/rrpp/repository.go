package rrpp

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jamm-events/backend/internal/models"
)

var (
	// ErrRRPPNotFound is returned when the promoter does not exist.
	ErrRRPPNotFound = errors.New("rrpp not found")
	// ErrCodigoTaken is returned when the referral code is already in use.
	ErrCodigoTaken = errors.New("codigo already in use")
)

const uniqueViolation = "23505"

const rrppColumns = `id, codigo, nombre, COALESCE(redes,''), COALESCE(telefono,''), creator_id, profile_id, created_at, updated_at`

// Repository handles promoter persistence and event assignments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an rrpp repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new promoter. Codigo must be globally unique.
func (r *Repository) Create(ctx context.Context, p *models.RRPP) error {
	const q = `INSERT INTO rrpps (codigo, nombre, redes, telefono, creator_id, profile_id)
		VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), $5, $6)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, p.Codigo, p.Nombre, p.Redes, p.Telefono, p.CreatorID, p.ProfileID).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrCodigoTaken
		}
		return err
	}
	return nil
}

// GetByID returns a promoter by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.RRPP, error) {
	const q = `SELECT ` + rrppColumns + ` FROM rrpps WHERE id = $1`
	return r.scanRRPP(r.pool.QueryRow(ctx, q, id))
}

// GetByCodigo returns a promoter by referral code.
func (r *Repository) GetByCodigo(ctx context.Context, codigo string) (*models.RRPP, error) {
	const q = `SELECT ` + rrppColumns + ` FROM rrpps WHERE codigo = $1`
	return r.scanRRPP(r.pool.QueryRow(ctx, q, codigo))
}

// GetByProfile returns the promoter linked to a platform account.
func (r *Repository) GetByProfile(ctx context.Context, profileID uuid.UUID) (*models.RRPP, error) {
	const q = `SELECT ` + rrppColumns + ` FROM rrpps WHERE profile_id = $1`
	return r.scanRRPP(r.pool.QueryRow(ctx, q, profileID))
}

// ResolveCode reports whether a referral code exists. Used at checkout
// attribution time; unknown codes are dropped by the caller.
func (r *Repository) ResolveCode(ctx context.Context, codigo string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM rrpps WHERE codigo = $1)`
	var exists bool
	err := r.pool.QueryRow(ctx, q, codigo).Scan(&exists)
	return exists, err
}

// ListByCreator returns the organizer's promoters.
func (r *Repository) ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]models.RRPP, error) {
	const q = `SELECT ` + rrppColumns + ` FROM rrpps WHERE creator_id = $1 ORDER BY nombre`
	rows, err := r.pool.Query(ctx, q, creatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.RRPP
	for rows.Next() {
		p, err := r.scanRRPP(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// Update updates promoter contact fields. Codigo is immutable: changing
// it would orphan historic attribution.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, nombre, redes, telefono string) error {
	const q = `UPDATE rrpps SET
		nombre = COALESCE(NULLIF($1,''), nombre),
		redes = COALESCE(NULLIF($2,''), redes),
		telefono = COALESCE(NULLIF($3,''), telefono),
		updated_at = NOW()
		WHERE id = $4`
	tag, err := r.pool.Exec(ctx, q, nombre, redes, telefono, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRRPPNotFound
	}
	return nil
}

// Delete removes a promoter profile. The profile_events rows cascade
// with it; purchases keep the denormalized code, so per-ticket
// attribution is untouched.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM rrpps WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRRPPNotFound
	}
	return nil
}

// Assign links a promoter to an event, reactivating a previous
// assignment when one exists.
func (r *Repository) Assign(ctx context.Context, rrppID, eventID uuid.UUID) error {
	const q = `INSERT INTO profile_events (rrpp_id, event_id, active) VALUES ($1, $2, TRUE)
		ON CONFLICT (rrpp_id, event_id) DO UPDATE SET active = TRUE`
	_, err := r.pool.Exec(ctx, q, rrppID, eventID)
	return err
}

// Unassign deactivates an assignment. The row is kept: average
// computations count every event the promoter was ever assigned to, and
// purchases keep their stored code either way.
func (r *Repository) Unassign(ctx context.Context, rrppID, eventID uuid.UUID) error {
	const q = `UPDATE profile_events SET active = FALSE WHERE rrpp_id = $1 AND event_id = $2`
	tag, err := r.pool.Exec(ctx, q, rrppID, eventID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRRPPNotFound
	}
	return nil
}

// ActiveEventIDs returns the events the promoter is currently assigned to.
func (r *Repository) ActiveEventIDs(ctx context.Context, rrppID uuid.UUID) ([]uuid.UUID, error) {
	const q = `SELECT event_id FROM profile_events WHERE rrpp_id = $1 AND active`
	rows, err := r.pool.Query(ctx, q, rrppID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AssignedEventCount returns how many distinct events the promoter was
// ever assigned to, including deactivated assignments.
func (r *Repository) AssignedEventCount(ctx context.Context, rrppID uuid.UUID) (int, error) {
	const q = `SELECT COUNT(DISTINCT event_id) FROM profile_events WHERE rrpp_id = $1`
	var n int
	err := r.pool.QueryRow(ctx, q, rrppID).Scan(&n)
	return n, err
}

func (r *Repository) scanRRPP(row pgx.Row) (*models.RRPP, error) {
	var p models.RRPP
	err := row.Scan(&p.ID, &p.Codigo, &p.Nombre, &p.Redes, &p.Telefono, &p.CreatorID, &p.ProfileID,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRRPPNotFound
		}
		return nil, err
	}
	return &p, nil
}
