package rrpp

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/jamm-events/backend/internal/models"
)

// EventRollup is one promoter's confirmed sales within one event.
type EventRollup struct {
	EventID   uuid.UUID       `json:"event_id"`
	EventName string          `json:"event_name"`
	Total     int             `json:"total"`
	Paid      int             `json:"paid"`
	Free      int             `json:"free"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// TypeRollup is one promoter's confirmed sales within one ticket type.
type TypeRollup struct {
	TicketTypeID uuid.UUID       `json:"ticket_type_id"`
	TypeLabel    string          `json:"type"`
	EventID      uuid.UUID       `json:"event_id"`
	Total        int             `json:"total"`
	Paid         int             `json:"paid"`
	Free         int             `json:"free"`
	Revenue      decimal.Decimal `json:"revenue"`
}

// Stats is the full rollup for one promoter.
type Stats struct {
	RRPP           models.RRPP     `json:"rrpp"`
	TotalTickets   int             `json:"total_tickets"`
	PaidTickets    int             `json:"paid_tickets"`
	FreeTickets    int             `json:"free_tickets"`
	Revenue        decimal.Decimal `json:"revenue"`
	PercentOfTotal decimal.Decimal `json:"percent_of_total"` // share of all confirmed tickets across the organizer's events
	AssignedEvents int             `json:"assigned_events"`  // distinct events ever assigned, including inactive
	AvgPerEvent    decimal.Decimal `json:"avg_tickets_per_event"`
	AvgPaidPerEvent decimal.Decimal `json:"avg_paid_per_event"`
	ByEvent        []EventRollup   `json:"by_event"`
	ByType         []TypeRollup    `json:"by_type"`
}

// Aggregator computes promoter rollups from committed purchase rows.
// Attribution is strictly by the rrpp code stored on each purchase, so
// totals are stable across later unassignment.
type Aggregator struct {
	pool *pgxpool.Pool
	repo *Repository
}

// NewAggregator creates the stats aggregator.
func NewAggregator(pool *pgxpool.Pool, repo *Repository) *Aggregator {
	return &Aggregator{pool: pool, repo: repo}
}

// ForOrganizer computes stats for every promoter of an organizer, scoped
// to the organizer's events.
func (a *Aggregator) ForOrganizer(ctx context.Context, organizerID uuid.UUID) ([]Stats, error) {
	promoters, err := a.repo.ListByCreator(ctx, organizerID)
	if err != nil {
		return nil, fmt.Errorf("list promoters: %w", err)
	}

	orgTotal, err := a.organizerConfirmedTotal(ctx, organizerID)
	if err != nil {
		return nil, err
	}

	stats := make([]Stats, 0, len(promoters))
	for i := range promoters {
		p := promoters[i]
		byEvent, err := a.eventRollups(ctx, p.Codigo, organizerID, nil)
		if err != nil {
			return nil, err
		}
		byType, err := a.typeRollups(ctx, p.Codigo, organizerID, nil)
		if err != nil {
			return nil, err
		}
		assigned, err := a.repo.AssignedEventCount(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		stats = append(stats, BuildStats(p, byEvent, byType, assigned, orgTotal))
	}
	return stats, nil
}

// ForPromoter computes one promoter's stats scoped to the events it is
// currently assigned to (the RRPP-role dashboard view).
func (a *Aggregator) ForPromoter(ctx context.Context, rrppID uuid.UUID) (*Stats, error) {
	p, err := a.repo.GetByID(ctx, rrppID)
	if err != nil {
		return nil, err
	}
	eventIDs, err := a.repo.ActiveEventIDs(ctx, rrppID)
	if err != nil {
		return nil, err
	}
	if len(eventIDs) == 0 {
		s := BuildStats(*p, nil, nil, 0, 0)
		return &s, nil
	}

	byEvent, err := a.eventRollups(ctx, p.Codigo, p.CreatorID, eventIDs)
	if err != nil {
		return nil, err
	}
	byType, err := a.typeRollups(ctx, p.Codigo, p.CreatorID, eventIDs)
	if err != nil {
		return nil, err
	}
	assigned, err := a.repo.AssignedEventCount(ctx, rrppID)
	if err != nil {
		return nil, err
	}
	s := BuildStats(*p, byEvent, byType, assigned, 0)
	return &s, nil
}

func (a *Aggregator) organizerConfirmedTotal(ctx context.Context, organizerID uuid.UUID) (int, error) {
	const q = `SELECT COALESCE(SUM(pt.quantity), 0)
		FROM purchased_tickets pt
		JOIN ticket_types tt ON tt.id = pt.ticket_type_id
		JOIN events e ON e.id = tt.event_id
		WHERE e.creator_id = $1 AND pt.payment_status = 'confirmed'`
	var total int
	if err := a.pool.QueryRow(ctx, q, organizerID).Scan(&total); err != nil {
		return 0, fmt.Errorf("organizer total: %w", err)
	}
	return total, nil
}

func (a *Aggregator) eventRollups(ctx context.Context, codigo string, organizerID uuid.UUID, eventIDs []uuid.UUID) ([]EventRollup, error) {
	q := `SELECT e.id, e.name,
			COALESCE(SUM(pt.quantity), 0),
			COALESCE(SUM(CASE WHEN pt.total_price > 0 THEN pt.quantity ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN pt.total_price = 0 THEN pt.quantity ELSE 0 END), 0),
			COALESCE(SUM(pt.total_price), 0)
		FROM purchased_tickets pt
		JOIN ticket_types tt ON tt.id = pt.ticket_type_id
		JOIN events e ON e.id = tt.event_id
		WHERE pt.rrpp = $1 AND pt.payment_status = 'confirmed' AND e.creator_id = $2`
	args := []interface{}{codigo, organizerID}
	if len(eventIDs) > 0 {
		q += ` AND e.id = ANY($3)`
		args = append(args, eventIDs)
	}
	q += ` GROUP BY e.id, e.name ORDER BY e.name`

	rows, err := a.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("event rollups: %w", err)
	}
	defer rows.Close()

	var list []EventRollup
	for rows.Next() {
		var r EventRollup
		if err := rows.Scan(&r.EventID, &r.EventName, &r.Total, &r.Paid, &r.Free, &r.Revenue); err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

func (a *Aggregator) typeRollups(ctx context.Context, codigo string, organizerID uuid.UUID, eventIDs []uuid.UUID) ([]TypeRollup, error) {
	q := `SELECT tt.id, tt.type, tt.event_id,
			COALESCE(SUM(pt.quantity), 0),
			COALESCE(SUM(CASE WHEN pt.total_price > 0 THEN pt.quantity ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN pt.total_price = 0 THEN pt.quantity ELSE 0 END), 0),
			COALESCE(SUM(pt.total_price), 0)
		FROM purchased_tickets pt
		JOIN ticket_types tt ON tt.id = pt.ticket_type_id
		JOIN events e ON e.id = tt.event_id
		WHERE pt.rrpp = $1 AND pt.payment_status = 'confirmed' AND e.creator_id = $2`
	args := []interface{}{codigo, organizerID}
	if len(eventIDs) > 0 {
		q += ` AND e.id = ANY($3)`
		args = append(args, eventIDs)
	}
	q += ` GROUP BY tt.id, tt.type, tt.event_id ORDER BY tt.type`

	rows, err := a.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("type rollups: %w", err)
	}
	defer rows.Close()

	var list []TypeRollup
	for rows.Next() {
		var r TypeRollup
		if err := rows.Scan(&r.TicketTypeID, &r.TypeLabel, &r.EventID, &r.Total, &r.Paid, &r.Free, &r.Revenue); err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

// BuildStats folds rollup rows into one promoter's stats. Averages
// divide by the count of distinct events the promoter was ever assigned
// to, so an assigned event with zero sales drags the average down.
// organizerTotal of 0 yields a zero percentage.
func BuildStats(p models.RRPP, byEvent []EventRollup, byType []TypeRollup, assignedEvents, organizerTotal int) Stats {
	s := Stats{
		RRPP:            p,
		Revenue:         decimal.Zero,
		PercentOfTotal:  decimal.Zero,
		AssignedEvents:  assignedEvents,
		AvgPerEvent:     decimal.Zero,
		AvgPaidPerEvent: decimal.Zero,
		ByEvent:         byEvent,
		ByType:          byType,
	}
	for _, r := range byEvent {
		s.TotalTickets += r.Total
		s.PaidTickets += r.Paid
		s.FreeTickets += r.Free
		s.Revenue = s.Revenue.Add(r.Revenue)
	}
	if organizerTotal > 0 {
		s.PercentOfTotal = decimal.NewFromInt(int64(s.TotalTickets)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(organizerTotal))).
			Round(2)
	}
	if assignedEvents > 0 {
		div := decimal.NewFromInt(int64(assignedEvents))
		s.AvgPerEvent = decimal.NewFromInt(int64(s.TotalTickets)).Div(div).Round(2)
		s.AvgPaidPerEvent = decimal.NewFromInt(int64(s.PaidTickets)).Div(div).Round(2)
	}
	return s
}
