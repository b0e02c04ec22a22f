package approval

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatherpass/backend/internal/middleware"
	"github.com/gatherpass/backend/pkg/response"
)

// Handler handles approval HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an approval handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Pending handles GET /admin/events/pending.
func (h *Handler) Pending(c *gin.Context) {
	list, err := h.svc.ListPendingEvents(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// ApproveEvent handles POST /admin/events/:id/approve.
func (h *Handler) ApproveEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	e, err := h.svc.ApproveEvent(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, e)
}

// ApproveRegistration handles POST /approve/:registrationId.
func (h *Handler) ApproveRegistration(c *gin.Context) {
	id, err := uuid.Parse(c.Param("registrationId"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	reg, err := h.svc.ApproveRegistration(c.Request.Context(), middleware.Actor(c).ID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, reg.View())
}
