package registrations

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatherpass/backend/internal/middleware"
	"github.com/gatherpass/backend/pkg/response"
)

// Handler handles registration HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a registrations handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Join handles POST /events/:id/join.
func (h *Handler) Join(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	reg, err := h.svc.Join(c.Request.Context(), middleware.Actor(c).ID, eventID)
	if err != nil {
		response.Error(c, err)
		return
	}
	view := reg.View()
	if reg.Active() {
		view.QRImage = QRImagePath(reg.ID)
	}
	response.Created(c, view)
}

// Mine handles GET /my-events.
func (h *Handler) Mine(c *gin.Context) {
	list, err := h.svc.ListMine(c.Request.Context(), middleware.Actor(c).ID)
	if err != nil {
		h.logger.Error("list registrations failed", zap.Error(err))
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// QR handles GET /registrations/:id/qr.png.
func (h *Handler) QR(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	png, err := h.svc.RenderQR(c.Request.Context(), middleware.Actor(c).ID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, "image/png", png)
}
