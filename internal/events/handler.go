package events

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jamm-events/backend/internal/middleware"
	"github.com/jamm-events/backend/internal/models"
	"github.com/jamm-events/backend/pkg/response"
	"github.com/jamm-events/backend/pkg/storage"
)

// Inventory exposes the ticket stock queries the public event view needs.
type Inventory interface {
	AvailableForEvent(ctx context.Context, eventID uuid.UUID) (int, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID, activeOnly bool) ([]models.TicketType, error)
}

// Handler handles event endpoints.
type Handler struct {
	repo      *Repository
	inventory Inventory
	s3        *storage.S3
	logger    *zap.Logger
}

// NewHandler creates an events handler. s3 may be nil when image uploads
// are disabled.
func NewHandler(repo *Repository, inventory Inventory, s3 *storage.S3, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, inventory: inventory, s3: s3, logger: logger}
}

type createEventRequest struct {
	Name              string     `json:"name" binding:"required"`
	Description       string     `json:"description"`
	StartsAt          time.Time  `json:"starts_at" binding:"required"`
	Location          string     `json:"location" binding:"required"`
	MaxTicketsPerUser int        `json:"max_tickets_per_user"`
	SalesEndAt        *time.Time `json:"sales_end_at"`
	MarketplaceFee    *string    `json:"marketplace_fee"`
}

// Create handles POST /events.
func (h *Handler) Create(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	fee := decimal.Zero
	if req.MarketplaceFee != nil {
		var err error
		fee, err = decimal.NewFromString(*req.MarketplaceFee)
		if err != nil || fee.IsNegative() {
			response.BadRequest(c, "invalid marketplace_fee")
			return
		}
	}
	if req.MaxTicketsPerUser < 0 {
		response.BadRequest(c, "invalid max_tickets_per_user")
		return
	}
	if req.MaxTicketsPerUser == 0 {
		req.MaxTicketsPerUser = 10
	}

	e := &models.Event{
		Name:              req.Name,
		Description:       req.Description,
		StartsAt:          req.StartsAt,
		Location:          req.Location,
		CreatorID:         userID,
		MaxTicketsPerUser: req.MaxTicketsPerUser,
		SalesEndAt:        req.SalesEndAt,
		MarketplaceFee:    fee,
	}
	if err := h.repo.Create(c.Request.Context(), e); err != nil {
		h.logger.Error("create event", zap.Error(err))
		response.Internal(c, "failed to create event")
		return
	}
	response.Created(c, e)
}

// ListMine handles GET /events, returning the caller's events.
func (h *Handler) ListMine(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.repo.List(c.Request.Context(), &userID, false)
	if err != nil {
		h.logger.Error("list events", zap.Error(err))
		response.Internal(c, "failed to list events")
		return
	}
	response.OK(c, list)
}

// Get handles GET /events/:id for the owner.
func (h *Handler) Get(c *gin.Context) {
	e := c.MustGet(ContextEvent).(*models.Event)
	response.OK(c, e)
}

type updateEventRequest struct {
	Name              string     `json:"name"`
	Description       string     `json:"description"`
	Location          string     `json:"location"`
	StartsAt          *time.Time `json:"starts_at"`
	SalesEndAt        *time.Time `json:"sales_end_at"`
	MaxTicketsPerUser *int       `json:"max_tickets_per_user"`
	MarketplaceFee    *string    `json:"marketplace_fee"`
}

// Update handles PUT /events/:id.
func (h *Handler) Update(c *gin.Context) {
	e := c.MustGet(ContextEvent).(*models.Event)
	var req updateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	var fee *decimal.Decimal
	if req.MarketplaceFee != nil {
		parsed, err := decimal.NewFromString(*req.MarketplaceFee)
		if err != nil || parsed.IsNegative() {
			response.BadRequest(c, "invalid marketplace_fee")
			return
		}
		fee = &parsed
	}
	if req.MaxTicketsPerUser != nil && *req.MaxTicketsPerUser <= 0 {
		response.BadRequest(c, "invalid max_tickets_per_user")
		return
	}

	err := h.repo.Update(c.Request.Context(), e.ID, req.Name, req.Description, req.Location,
		req.StartsAt, req.SalesEndAt, req.MaxTicketsPerUser, fee)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		h.logger.Error("update event", zap.Error(err))
		response.Internal(c, "failed to update event")
		return
	}
	updated, err := h.repo.GetByID(c.Request.Context(), e.ID)
	if err != nil {
		h.logger.Error("reload event", zap.Error(err))
		response.Internal(c, "failed to update event")
		return
	}
	response.OK(c, updated)
}

// Deactivate handles DELETE /events/:id (soft delete).
func (h *Handler) Deactivate(c *gin.Context) {
	e := c.MustGet(ContextEvent).(*models.Event)
	if err := h.repo.Deactivate(c.Request.Context(), e.ID); err != nil {
		h.logger.Error("deactivate event", zap.Error(err))
		response.Internal(c, "failed to deactivate event")
		return
	}
	response.NoContent(c)
}

// UploadImage handles POST /events/:id/image (multipart form, field "image").
func (h *Handler) UploadImage(c *gin.Context) {
	if h.s3 == nil {
		response.Internal(c, "image storage not configured")
		return
	}
	e := c.MustGet(ContextEvent).(*models.Event)

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		response.BadRequest(c, "missing image file")
		return
	}
	defer file.Close()

	if header.Size > storage.MaxImageSize {
		response.BadRequest(c, "image exceeds 5MB limit")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if !storage.ValidateImageType(contentType, header.Filename) {
		response.BadRequest(c, "unsupported image type")
		return
	}

	key := storage.EventImageKey(e.ID.String(), header.Filename)
	url, err := h.s3.UploadEventImage(c.Request.Context(), key, contentType, file, header.Size)
	if err != nil {
		h.logger.Error("upload event image", zap.Error(err), zap.String("event_id", e.ID.String()))
		response.Internal(c, "failed to upload image")
		return
	}

	// Drop the previous object once the new one is in place.
	if e.ImageKey != "" && e.ImageKey != key {
		if err := h.s3.DeleteEventImage(c.Request.Context(), e.ImageKey); err != nil {
			h.logger.Warn("delete previous event image", zap.Error(err), zap.String("key", e.ImageKey))
		}
	}

	if err := h.repo.SetImage(c.Request.Context(), e.ID, url, key); err != nil {
		h.logger.Error("store image url", zap.Error(err))
		response.Internal(c, "failed to store image url")
		return
	}
	response.OK(c, gin.H{"image_url": url})
}

// publicTicketType is the buyer-facing view of a ticket type. Remaining
// stock is not exposed per type.
type publicTicketType struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	SoldOut     bool            `json:"sold_out"`
}

// PublicView handles GET /public/events/:id, the buyer-facing event page.
// Courtesy types are never listed and do not count toward availability.
// An rrpp query parameter is echoed back so the storefront can carry the
// referral code into checkout.
func (h *Handler) PublicView(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	e, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		h.logger.Error("load event", zap.Error(err))
		response.Internal(c, "failed to load event")
		return
	}
	if !e.Active {
		response.NotFound(c, "event not found")
		return
	}

	available, err := h.inventory.AvailableForEvent(c.Request.Context(), e.ID)
	if err != nil {
		h.logger.Error("event availability", zap.Error(err))
		response.Internal(c, "failed to load event")
		return
	}
	types, err := h.inventory.ListByEvent(c.Request.Context(), e.ID, true)
	if err != nil {
		h.logger.Error("event ticket types", zap.Error(err))
		response.Internal(c, "failed to load event")
		return
	}

	public := make([]publicTicketType, 0, len(types))
	for _, tt := range types {
		if tt.IsCourtesy() {
			continue
		}
		public = append(public, publicTicketType{
			ID:          tt.ID,
			Type:        tt.Type,
			Description: tt.Description,
			Price:       tt.Price,
			SoldOut:     tt.Quantity <= 0,
		})
	}

	resp := gin.H{
		"event":        e,
		"available":    available,
		"sales_open":   e.SalesOpen(time.Now()),
		"ticket_types": public,
	}
	if code := c.Query("rrpp"); code != "" {
		resp["rrpp"] = code
	}
	c.JSON(http.StatusOK, response.Body{Success: true, Data: resp})
}
