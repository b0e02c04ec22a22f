package events

import (
	"math"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatherpass/backend/internal/middleware"
	"github.com/gatherpass/backend/internal/models"
	"github.com/gatherpass/backend/pkg/response"
)

// CreateEventRequest is the body for POST /events. Price is in major units (rupees),
// capped at one crore.
type CreateEventRequest struct {
	Title       string          `json:"title" binding:"required,max=200"`
	Description string          `json:"description" binding:"required"`
	Category    models.Category `json:"category" binding:"required,oneof=free paid"`
	PlaceName   string          `json:"place_name" binding:"max=200"`
	Location    string          `json:"location" binding:"required_without=PlaceName"`
	Date        time.Time       `json:"date" binding:"required"`
	Capacity    int             `json:"capacity" binding:"omitempty,gt=0"`
	Price       *float64        `json:"price" binding:"omitempty,gt=0,max=10000000"`
	Image       string          `json:"image" binding:"omitempty,url"`
}

// Handler handles catalog HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an events handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	RegisterValidators()
	return &Handler{svc: svc, logger: logger}
}

// List handles GET /events.
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.ListPublic(c.Request.Context(), models.EventFilter{Location: strings.TrimSpace(c.Query("location"))})
	if err != nil {
		h.logger.Error("list events failed", zap.Error(err))
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Create handles POST /events.
func (h *Handler) Create(c *gin.Context) {
	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	in := CreateInput{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Category:    req.Category,
		PlaceName:   strings.TrimSpace(req.PlaceName),
		Location:    strings.TrimSpace(req.Location),
		Date:        req.Date,
		Capacity:    req.Capacity,
		ImageURL:    req.Image,
	}
	if req.Price != nil {
		minor := int64(math.Round(*req.Price * 100))
		in.PriceMinor = &minor
	}
	e, err := h.svc.Create(c.Request.Context(), middleware.Actor(c).ID, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, e)
}

// Get handles GET /events/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	e, err := h.svc.Get(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, e)
}

// Hosted handles GET /hosted.
func (h *Handler) Hosted(c *gin.Context) {
	list, err := h.svc.ListHosted(c.Request.Context(), middleware.Actor(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Attendees handles GET /hosted/:id/attendees.
func (h *Handler) Attendees(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	list, err := h.svc.Attendees(c.Request.Context(), middleware.Actor(c).ID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}
