package payments

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatherpass/backend/internal/middleware"
	"github.com/gatherpass/backend/internal/models"
	"github.com/gatherpass/backend/pkg/response"
)

// VerifyRequest is the body for POST /payments/verify.
type VerifyRequest struct {
	OrderID   string `json:"order_id" binding:"required"`
	PaymentID string `json:"payment_id" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// VerifyResponse reports the outcome of a successful verification.
type VerifyResponse struct {
	Verified     bool                    `json:"verified"`
	Registration models.RegistrationView `json:"registration"`
}

// Handler handles payment HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a payments handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Create handles POST /payments/create/:registrationId.
func (h *Handler) Create(c *gin.Context) {
	id, err := uuid.Parse(c.Param("registrationId"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	order, err := h.svc.CreateOrder(c.Request.Context(), middleware.Actor(c).ID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, order)
}

// Verify handles POST /payments/verify.
func (h *Handler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	reg, err := h.svc.Verify(c.Request.Context(), middleware.Actor(c).ID, VerifyInput{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, VerifyResponse{Verified: true, Registration: reg.View()})
}
