package analytics

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/jamm-events/backend/internal/events"
	"github.com/jamm-events/backend/internal/models"
	"github.com/jamm-events/backend/internal/tickets"
	"github.com/jamm-events/backend/pkg/response"
)

// Handler handles GET /events/:id/analytics.
type Handler struct {
	pool       *pgxpool.Pool
	ticketRepo *tickets.Repository
}

// NewHandler creates an analytics handler.
func NewHandler(pool *pgxpool.Pool, ticketRepo *tickets.Repository) *Handler {
	return &Handler{pool: pool, ticketRepo: ticketRepo}
}

// TypeBreakdown is the per-type slice of the event summary.
type TypeBreakdown struct {
	TicketTypeID uuid.UUID       `json:"ticket_type_id"`
	Type         string          `json:"type"`
	Sold         int             `json:"sold"`
	Remaining    int             `json:"remaining"`
	Revenue      decimal.Decimal `json:"revenue"`
}

// SummaryResponse is the JSON shape for the event sales dashboard.
type SummaryResponse struct {
	TotalSold     int             `json:"total_sold"`
	PaidSold      int             `json:"paid_sold"`
	FreeIssued    int             `json:"free_issued"`
	Revenue       decimal.Decimal `json:"revenue"`
	Available     int             `json:"available"` // courtesy pool excluded
	RedeemedCount int             `json:"redeemed_count"`
	ByType        []TypeBreakdown `json:"by_type"`
}

// GetByEvent handles GET /events/:id/analytics. Owner access is
// enforced by route middleware. Counts cover confirmed purchases only;
// pending paid orders hold no inventory and do not show here.
func (h *Handler) GetByEvent(c *gin.Context) {
	e := c.MustGet(events.ContextEvent).(*models.Event)
	ctx := c.Request.Context()

	const totalsQ = `SELECT
			COALESCE(SUM(pt.quantity), 0),
			COALESCE(SUM(CASE WHEN pt.total_price > 0 THEN pt.quantity ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN pt.total_price = 0 THEN pt.quantity ELSE 0 END), 0),
			COALESCE(SUM(pt.total_price), 0),
			COALESCE(SUM(CASE WHEN NOT pt.active THEN pt.quantity ELSE 0 END), 0)
		FROM purchased_tickets pt
		JOIN ticket_types tt ON tt.id = pt.ticket_type_id
		WHERE tt.event_id = $1 AND pt.payment_status = 'confirmed'`

	var summary SummaryResponse
	err := h.pool.QueryRow(ctx, totalsQ, e.ID).Scan(&summary.TotalSold, &summary.PaidSold,
		&summary.FreeIssued, &summary.Revenue, &summary.RedeemedCount)
	if err != nil {
		response.Internal(c, "failed to load sales totals")
		return
	}

	available, err := h.ticketRepo.AvailableForEvent(ctx, e.ID)
	if err != nil {
		response.Internal(c, "failed to load availability")
		return
	}
	summary.Available = available

	const typesQ = `SELECT tt.id, tt.type, tt.quantity,
			COALESCE(SUM(pt.quantity) FILTER (WHERE pt.payment_status = 'confirmed'), 0),
			COALESCE(SUM(pt.total_price) FILTER (WHERE pt.payment_status = 'confirmed'), 0)
		FROM ticket_types tt
		LEFT JOIN purchased_tickets pt ON pt.ticket_type_id = tt.id
		WHERE tt.event_id = $1 AND tt.active
		GROUP BY tt.id, tt.type, tt.quantity
		ORDER BY tt.type`

	rows, err := h.pool.Query(ctx, typesQ, e.ID)
	if err != nil {
		response.Internal(c, "failed to load type breakdown")
		return
	}
	defer rows.Close()

	for rows.Next() {
		var b TypeBreakdown
		if err := rows.Scan(&b.TicketTypeID, &b.Type, &b.Remaining, &b.Sold, &b.Revenue); err != nil {
			response.Internal(c, "failed to load type breakdown")
			return
		}
		summary.ByType = append(summary.ByType, b)
	}
	if rows.Err() != nil {
		response.Internal(c, "failed to load type breakdown")
		return
	}

	response.OK(c, summary)
}
