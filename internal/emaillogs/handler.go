package emaillogs

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/jamm-events/backend/internal/events"
	"github.com/jamm-events/backend/internal/models"
	"github.com/jamm-events/backend/internal/tickets"
	"github.com/jamm-events/backend/pkg/queue"
	"github.com/jamm-events/backend/pkg/response"
)

// Enqueuer hands resend jobs to the worker.
type Enqueuer interface {
	EnqueueTicketEmail(ctx context.Context, payload queue.TicketEmailPayload) error
}

// Handler handles email log HTTP endpoints.
type Handler struct {
	repo    *Repository
	tickets *tickets.Repository
	mail    Enqueuer
	logger  *zap.Logger
}

// NewHandler creates an email logs handler.
func NewHandler(repo *Repository, ticketRepo *tickets.Repository, mail Enqueuer, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, tickets: ticketRepo, mail: mail, logger: logger}
}

// ListByEvent handles GET /events/:id/emails. Runs inside the event
// owner group.
func (h *Handler) ListByEvent(c *gin.Context) {
	e := c.MustGet(events.ContextEvent).(*models.Event)
	logs, err := h.repo.ListByEvent(c.Request.Context(), e.ID)
	if err != nil {
		h.logger.Error("list email logs", zap.Error(err))
		response.Internal(c, "failed to load email logs")
		return
	}
	response.OK(c, logs)
}

// ResendRequest is the body for POST /events/:id/emails/resend.
type ResendRequest struct {
	PurchaseID uuid.UUID `json:"purchase_id" binding:"required"`
	EmailType  string    `json:"email_type"`
}

// Resend handles POST /events/:id/emails/resend. Re-enqueues the ticket
// email for a confirmed purchase.
func (h *Handler) Resend(c *gin.Context) {
	e := c.MustGet(events.ContextEvent).(*models.Event)
	var body ResendRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "purchase_id required")
		return
	}

	pt, err := h.tickets.GetPurchase(c.Request.Context(), body.PurchaseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "purchase not found")
			return
		}
		h.logger.Error("load purchase", zap.Error(err))
		response.Internal(c, "failed to load purchase")
		return
	}
	if pt.PaymentStatus != models.PaymentConfirmed {
		response.Conflict(c, "purchase is not confirmed")
		return
	}

	emailType := body.EmailType
	if emailType == "" {
		emailType = queue.EmailTypeTicketConfirmation
	}
	err = h.mail.EnqueueTicketEmail(c.Request.Context(), queue.TicketEmailPayload{
		EmailType:   emailType,
		EventID:     e.ID,
		PurchaseIDs: []uuid.UUID{pt.ID},
		Recipient:   pt.Email,
	})
	if err != nil {
		h.logger.Error("enqueue resend", zap.Error(err))
		response.Internal(c, "failed to enqueue resend")
		return
	}
	response.OK(c, gin.H{"message": "resend queued"})
}
