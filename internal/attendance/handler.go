package attendance

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gatherpass/backend/internal/middleware"
	"github.com/gatherpass/backend/pkg/response"
)

// ScanRequest is the body for POST /events/scan-qr.
type ScanRequest struct {
	QRToken string `json:"qr_token" binding:"required"`
}

// Handler handles attendance HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an attendance handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Scan handles POST /events/scan-qr.
func (h *Handler) Scan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.svc.Scan(c.Request.Context(), middleware.Actor(c).ID, req.QRToken)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}
