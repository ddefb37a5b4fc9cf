package rrpp

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jamm-events/backend/internal/events"
	"github.com/jamm-events/backend/internal/middleware"
	"github.com/jamm-events/backend/internal/models"
	"github.com/jamm-events/backend/pkg/response"
)

// Handler handles promoter management and stats endpoints.
type Handler struct {
	repo   *Repository
	stats  *Aggregator
	events *events.Repository
	logger *zap.Logger
}

// NewHandler creates an rrpp handler.
func NewHandler(repo *Repository, stats *Aggregator, eventsRepo *events.Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, stats: stats, events: eventsRepo, logger: logger}
}

type createRRPPRequest struct {
	Codigo    string     `json:"codigo" binding:"required"`
	Nombre    string     `json:"nombre" binding:"required"`
	Redes     string     `json:"redes"`
	Telefono  string     `json:"telefono"`
	ProfileID *uuid.UUID `json:"profile_id"`
}

// Create handles POST /rrpps.
func (h *Handler) Create(c *gin.Context) {
	var req createRRPPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	p := &models.RRPP{
		Codigo:    req.Codigo,
		Nombre:    req.Nombre,
		Redes:     req.Redes,
		Telefono:  req.Telefono,
		CreatorID: userID,
		ProfileID: req.ProfileID,
	}
	if err := h.repo.Create(c.Request.Context(), p); err != nil {
		if errors.Is(err, ErrCodigoTaken) {
			response.Conflict(c, "codigo already in use")
			return
		}
		h.logger.Error("create rrpp", zap.Error(err))
		response.Internal(c, "failed to create rrpp")
		return
	}
	response.Created(c, p)
}

// List handles GET /rrpps, the organizer's promoters.
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.repo.ListByCreator(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("list rrpps", zap.Error(err))
		response.Internal(c, "failed to list rrpps")
		return
	}
	response.OK(c, list)
}

type updateRRPPRequest struct {
	Nombre   string `json:"nombre"`
	Redes    string `json:"redes"`
	Telefono string `json:"telefono"`
}

// Update handles PUT /rrpps/:id.
func (h *Handler) Update(c *gin.Context) {
	p, ok := h.owned(c)
	if !ok {
		return
	}
	var req updateRRPPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.repo.Update(c.Request.Context(), p.ID, req.Nombre, req.Redes, req.Telefono); err != nil {
		h.logger.Error("update rrpp", zap.Error(err))
		response.Internal(c, "failed to update rrpp")
		return
	}
	updated, err := h.repo.GetByID(c.Request.Context(), p.ID)
	if err != nil {
		h.logger.Error("reload rrpp", zap.Error(err))
		response.Internal(c, "failed to update rrpp")
		return
	}
	response.OK(c, updated)
}

// Delete handles DELETE /rrpps/:id. Assignments cascade away with the
// profile; purchases keep the stored code, so historical attribution on
// individual tickets survives the delete.
func (h *Handler) Delete(c *gin.Context) {
	p, ok := h.owned(c)
	if !ok {
		return
	}
	if err := h.repo.Delete(c.Request.Context(), p.ID); err != nil {
		h.logger.Error("delete rrpp", zap.Error(err))
		response.Internal(c, "failed to delete rrpp")
		return
	}
	response.NoContent(c)
}

// Assign handles POST /rrpps/:id/events/:eventID.
func (h *Handler) Assign(c *gin.Context) {
	p, e, ok := h.ownedPair(c)
	if !ok {
		return
	}
	if err := h.repo.Assign(c.Request.Context(), p.ID, e.ID); err != nil {
		h.logger.Error("assign rrpp", zap.Error(err))
		response.Internal(c, "failed to assign rrpp")
		return
	}
	response.OK(c, gin.H{"rrpp_id": p.ID, "event_id": e.ID, "active": true})
}

// Unassign handles DELETE /rrpps/:id/events/:eventID. Historical
// attribution is unaffected: purchases keep the stored code.
func (h *Handler) Unassign(c *gin.Context) {
	p, e, ok := h.ownedPair(c)
	if !ok {
		return
	}
	if err := h.repo.Unassign(c.Request.Context(), p.ID, e.ID); err != nil {
		if errors.Is(err, ErrRRPPNotFound) {
			response.NotFound(c, "assignment not found")
			return
		}
		h.logger.Error("unassign rrpp", zap.Error(err))
		response.Internal(c, "failed to unassign rrpp")
		return
	}
	response.NoContent(c)
}

// OrganizerStats handles GET /rrpps/stats, the organizer-wide rollup.
func (h *Handler) OrganizerStats(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	stats, err := h.stats.ForOrganizer(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("organizer stats", zap.Error(err))
		response.Internal(c, "failed to compute stats")
		return
	}
	response.OK(c, stats)
}

// MyStats handles GET /rrpps/me/stats for RRPP-role users, scoped to
// currently assigned events.
func (h *Handler) MyStats(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	p, err := h.repo.GetByProfile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrRRPPNotFound) {
			response.NotFound(c, "no promoter profile linked to this account")
			return
		}
		h.logger.Error("load promoter profile", zap.Error(err))
		response.Internal(c, "failed to compute stats")
		return
	}
	stats, err := h.stats.ForPromoter(c.Request.Context(), p.ID)
	if err != nil {
		h.logger.Error("promoter stats", zap.Error(err))
		response.Internal(c, "failed to compute stats")
		return
	}
	response.OK(c, stats)
}

// owned resolves the :id promoter and checks the caller created it.
func (h *Handler) owned(c *gin.Context) (*models.RRPP, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid rrpp id")
		return nil, false
	}
	p, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrRRPPNotFound) {
			response.NotFound(c, "rrpp not found")
		} else {
			h.logger.Error("load rrpp", zap.Error(err))
			response.Internal(c, "failed to load rrpp")
		}
		return nil, false
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if p.CreatorID != userID {
		response.Forbidden(c, "not the rrpp owner")
		return nil, false
	}
	return p, true
}

// ownedPair additionally resolves the :eventID event and checks the
// caller owns it too.
func (h *Handler) ownedPair(c *gin.Context) (*models.RRPP, *models.Event, bool) {
	p, ok := h.owned(c)
	if !ok {
		return nil, nil, false
	}
	eventID, err := uuid.Parse(c.Param("eventID"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return nil, nil, false
	}
	e, err := h.events.GetByID(c.Request.Context(), eventID)
	if err != nil {
		if errors.Is(err, events.ErrEventNotFound) {
			response.NotFound(c, "event not found")
		} else {
			h.logger.Error("load event", zap.Error(err))
			response.Internal(c, "failed to load event")
		}
		return nil, nil, false
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if e.CreatorID != userID {
		response.Forbidden(c, "not the event owner")
		return nil, nil, false
	}
	return p, e, true
}
