package checkout

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jamm-events/backend/internal/events"
	"github.com/jamm-events/backend/internal/middleware"
	"github.com/jamm-events/backend/internal/models"
	"github.com/jamm-events/backend/internal/tickets"
	"github.com/jamm-events/backend/pkg/response"
)

// Handler handles checkout endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a checkout handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type checkoutRequest struct {
	EventID     uuid.UUID  `json:"event_id" binding:"required"`
	Items       []CartItem `json:"items" binding:"required"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Phone       string     `json:"phone"`
	Document    string     `json:"document"`
	Country     string     `json:"country"`
	RRPPCode    string     `json:"rrpp"`
	Fingerprint string     `json:"device_fingerprint"`
}

// Checkout handles POST /checkout for authenticated buyers. Buyer
// identity comes from the token.
func (h *Handler) Checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	email := c.MustGet(middleware.ContextUserEmail).(string)

	h.run(c, Input{
		EventID:     req.EventID,
		Items:       req.Items,
		UserID:      &userID,
		Email:       email,
		Name:        req.Name,
		Phone:       req.Phone,
		Document:    req.Document,
		Country:     req.Country,
		RRPPCode:    req.RRPPCode,
		Fingerprint: req.Fingerprint,
	})
}

// GuestCheckout handles POST /public/checkout. Guests must supply
// contact details; the tickets are mailed to the given address.
func (h *Handler) GuestCheckout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Email == "" || req.Name == "" {
		response.BadRequest(c, "email and name are required")
		return
	}

	h.run(c, Input{
		EventID:     req.EventID,
		Items:       req.Items,
		Email:       req.Email,
		Name:        req.Name,
		Phone:       req.Phone,
		Document:    req.Document,
		Country:     req.Country,
		RRPPCode:    req.RRPPCode,
		Fingerprint: req.Fingerprint,
	})
}

func (h *Handler) run(c *gin.Context, in Input) {
	result, err := h.svc.Checkout(c.Request.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyCart), errors.Is(err, ErrCourtesyNotGrantable):
			response.BadRequest(c, err.Error())
		case errors.Is(err, ErrSalesClosed), errors.Is(err, ErrPurchaseLimit),
			errors.Is(err, tickets.ErrInsufficientInventory):
			response.Conflict(c, err.Error())
		case errors.Is(err, events.ErrEventNotFound), errors.Is(err, tickets.ErrTicketTypeNotFound):
			response.NotFound(c, err.Error())
		default:
			h.logger.Error("checkout failed", zap.Error(err))
			response.Internal(c, "checkout failed")
		}
		return
	}
	response.Created(c, result)
}

// GuestOrderLookup handles GET /public/orders/:id?email=. Guests check
// their order state (and fetch tickets once confirmed) without an
// account.
func (h *Handler) GuestOrderLookup(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid order id")
		return
	}
	email := c.Query("email")
	if email == "" {
		response.BadRequest(c, "email is required")
		return
	}

	lookup, err := h.svc.LookupOrder(c.Request.Context(), orderID, email)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			response.NotFound(c, "order not found")
			return
		}
		h.logger.Error("order lookup failed", zap.Error(err))
		response.Internal(c, "order lookup failed")
		return
	}
	response.OK(c, lookup)
}

type grantRequest struct {
	TicketTypeID uuid.UUID `json:"ticket_type_id" binding:"required"`
	Email        string    `json:"email" binding:"required,email"`
	Quantity     int       `json:"quantity" binding:"required"`
	RRPPCode     string    `json:"rrpp"`
}

// Grant handles POST /events/:id/grants. Runs inside the event owner
// group; issues courtesy tickets without touching the sale pool.
func (h *Handler) Grant(c *gin.Context) {
	e := c.MustGet(events.ContextEvent).(*models.Event)
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	pt, err := h.svc.Grant(c.Request.Context(), e.ID, GrantInput{
		TicketTypeID: req.TicketTypeID,
		Email:        req.Email,
		Quantity:     req.Quantity,
		RRPPCode:     req.RRPPCode,
	})
	if err != nil {
		switch {
		case errors.Is(err, tickets.ErrTicketTypeNotFound):
			response.NotFound(c, err.Error())
		case errors.Is(err, tickets.ErrInsufficientInventory):
			response.Conflict(c, err.Error())
		case errors.Is(err, ErrEmptyCart), errors.Is(err, ErrNotGrantable):
			response.BadRequest(c, err.Error())
		default:
			h.logger.Error("grant failed", zap.Error(err))
			response.Internal(c, "grant failed")
		}
		return
	}
	response.Created(c, pt)
}
