package tickets

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jamm-events/backend/internal/events"
	"github.com/jamm-events/backend/internal/middleware"
	"github.com/jamm-events/backend/internal/models"
	"github.com/jamm-events/backend/pkg/response"
)

// Handler handles ticket type management and ticket redemption.
type Handler struct {
	repo   *Repository
	events *events.Repository
	logger *zap.Logger
}

// NewHandler creates a tickets handler.
func NewHandler(repo *Repository, eventsRepo *events.Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, events: eventsRepo, logger: logger}
}

type createTypeRequest struct {
	Type        string `json:"type" binding:"required"`
	Description string `json:"description"`
	Price       string `json:"price" binding:"required"`
	Quantity    int    `json:"quantity"`
}

// CreateType handles POST /events/:id/ticket-types. Runs inside the
// event owner group.
func (h *Handler) CreateType(c *gin.Context) {
	e := c.MustGet(events.ContextEvent).(*models.Event)

	var req createTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		response.BadRequest(c, "invalid price")
		return
	}
	if req.Quantity < 0 {
		response.BadRequest(c, "invalid quantity")
		return
	}
	// Courtesy seats are granted, never sold; the pool has no price and
	// no counted stock.
	if req.Type == models.CourtesyType && !price.IsZero() {
		response.BadRequest(c, "courtesy tickets must be free")
		return
	}

	tt := &models.TicketType{
		EventID:     e.ID,
		Type:        req.Type,
		Description: req.Description,
		Price:       price,
		Quantity:    req.Quantity,
	}
	if err := h.repo.CreateTicketType(c.Request.Context(), tt); err != nil {
		h.logger.Error("create ticket type", zap.Error(err))
		response.Internal(c, "failed to create ticket type")
		return
	}
	response.Created(c, tt)
}

// ListTypes handles GET /events/:id/ticket-types for the owner,
// including inactive and courtesy types.
func (h *Handler) ListTypes(c *gin.Context) {
	e := c.MustGet(events.ContextEvent).(*models.Event)
	list, err := h.repo.ListByEvent(c.Request.Context(), e.ID, false)
	if err != nil {
		h.logger.Error("list ticket types", zap.Error(err))
		response.Internal(c, "failed to list ticket types")
		return
	}
	response.OK(c, list)
}

type updateTypeRequest struct {
	Type        string `json:"type" binding:"required"`
	Description string `json:"description"`
	Price       string `json:"price" binding:"required"`
}

// UpdateType handles PUT /ticket-types/:id.
func (h *Handler) UpdateType(c *gin.Context) {
	tt, ok := h.ownedType(c)
	if !ok {
		return
	}
	var req updateTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		response.BadRequest(c, "invalid price")
		return
	}
	if req.Type == models.CourtesyType && !price.IsZero() {
		response.BadRequest(c, "courtesy tickets must be free")
		return
	}
	if err := h.repo.UpdateTicketType(c.Request.Context(), tt.ID, req.Type, req.Description, price); err != nil {
		if errors.Is(err, ErrTicketTypeNotFound) {
			response.NotFound(c, "ticket type not found")
			return
		}
		h.logger.Error("update ticket type", zap.Error(err))
		response.Internal(c, "failed to update ticket type")
		return
	}
	updated, err := h.repo.GetTicketType(c.Request.Context(), tt.ID)
	if err != nil {
		h.logger.Error("reload ticket type", zap.Error(err))
		response.Internal(c, "failed to update ticket type")
		return
	}
	response.OK(c, updated)
}

// DeactivateType handles DELETE /ticket-types/:id (soft delete).
func (h *Handler) DeactivateType(c *gin.Context) {
	tt, ok := h.ownedType(c)
	if !ok {
		return
	}
	if err := h.repo.DeactivateTicketType(c.Request.Context(), tt.ID); err != nil {
		h.logger.Error("deactivate ticket type", zap.Error(err))
		response.Internal(c, "failed to deactivate ticket type")
		return
	}
	response.NoContent(c)
}

type redeemRequest struct {
	QRCode string `json:"qr_code" binding:"required"`
}

// Redeem handles POST /tickets/redeem. Only the event owner can redeem,
// and a ticket redeems exactly once.
func (h *Handler) Redeem(c *gin.Context) {
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	pt, err := h.repo.GetPurchaseByQR(c.Request.Context(), req.QRCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "ticket not found")
			return
		}
		h.logger.Error("load ticket", zap.Error(err))
		response.Internal(c, "failed to load ticket")
		return
	}
	tt, err := h.repo.GetTicketType(c.Request.Context(), pt.TicketTypeID)
	if err != nil {
		h.logger.Error("load ticket type", zap.Error(err))
		response.Internal(c, "failed to load ticket")
		return
	}
	e, err := h.events.GetByID(c.Request.Context(), tt.EventID)
	if err != nil {
		h.logger.Error("load event", zap.Error(err))
		response.Internal(c, "failed to load ticket")
		return
	}
	if e.CreatorID != userID {
		response.Forbidden(c, "not the event owner")
		return
	}

	if pt.PaymentStatus != models.PaymentConfirmed {
		response.Conflict(c, "ticket is not confirmed")
		return
	}
	if !pt.Active {
		response.Conflict(c, "ticket already redeemed")
		return
	}

	redeemed, err := h.repo.Redeem(c.Request.Context(), req.QRCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the race with a concurrent redemption.
			response.Conflict(c, "ticket already redeemed")
			return
		}
		h.logger.Error("redeem ticket", zap.Error(err))
		response.Internal(c, "failed to redeem ticket")
		return
	}
	response.OK(c, redeemed)
}

// MyTickets handles GET /me/tickets, the authenticated buyer's confirmed
// purchases.
func (h *Handler) MyTickets(c *gin.Context) {
	email := c.MustGet(middleware.ContextUserEmail).(string)
	list, err := h.repo.ListPurchasesByEmail(c.Request.Context(), email)
	if err != nil {
		h.logger.Error("list purchases", zap.Error(err))
		response.Internal(c, "failed to list tickets")
		return
	}
	response.OK(c, list)
}

// ownedType resolves the :id ticket type and checks the caller owns its
// event. Writes the error response itself when the check fails.
func (h *Handler) ownedType(c *gin.Context) (*models.TicketType, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid ticket type id")
		return nil, false
	}
	tt, err := h.repo.GetTicketType(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrTicketTypeNotFound) {
			response.NotFound(c, "ticket type not found")
		} else {
			h.logger.Error("load ticket type", zap.Error(err))
			response.Internal(c, "failed to load ticket type")
		}
		return nil, false
	}
	e, err := h.events.GetByID(c.Request.Context(), tt.EventID)
	if err != nil {
		h.logger.Error("load event", zap.Error(err))
		response.Internal(c, "failed to load ticket type")
		return nil, false
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if e.CreatorID != userID {
		response.Forbidden(c, "not the event owner")
		return nil, false
	}
	return tt, true
}
