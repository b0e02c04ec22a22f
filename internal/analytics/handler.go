package analytics

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatherpass/backend/internal/middleware"
	"github.com/gatherpass/backend/pkg/response"
)

// Handler handles GET /hosted/:id/summary.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an analytics handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Summary handles GET /hosted/:id/summary.
func (h *Handler) Summary(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	sum, err := h.svc.EventSummary(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sum)
}
