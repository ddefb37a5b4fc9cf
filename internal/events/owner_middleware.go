package events

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jamm-events/backend/internal/middleware"
	"github.com/jamm-events/backend/pkg/response"
)

// ContextEvent is the gin context key under which RequireOwner stores the
// loaded event.
const ContextEvent = "event"

// RequireOwner loads the event from the :id path parameter and verifies
// the authenticated user created it. Must run after the JWT middleware.
func RequireOwner(repo *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, "invalid event id")
			c.Abort()
			return
		}
		e, err := repo.GetByID(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, ErrEventNotFound) {
				response.NotFound(c, "event not found")
			} else {
				response.Internal(c, "failed to load event")
			}
			c.Abort()
			return
		}
		userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
		if e.CreatorID != userID {
			response.Forbidden(c, "not the event owner")
			c.Abort()
			return
		}
		c.Set(ContextEvent, e)
		c.Next()
	}
}
