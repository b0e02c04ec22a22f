package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatherpass/backend/internal/models"
	"github.com/gatherpass/backend/pkg/apperror"
	"github.com/gatherpass/backend/pkg/response"
	"github.com/gatherpass/backend/pkg/utils"
)

// UserStore is the persistence the auth handler needs.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, email, passwordHash, fullName string, role models.Role) (*models.User, error)
}

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name" binding:"required,max=120"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	repo        UserStore
	jwt         *JWTService
	adminEmails map[string]struct{}
	logger      *zap.Logger
}

// NewHandler creates an auth handler. Registrations using an email in adminEmails get the admin role.
func NewHandler(repo UserStore, jwt *JWTService, adminEmails []string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	admins := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		admins[strings.ToLower(e)] = struct{}{}
	}
	return &Handler{repo: repo, jwt: jwt, adminEmails: admins, logger: logger}
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	role := models.RoleUser
	if _, ok := h.adminEmails[strings.ToLower(req.Email)]; ok {
		role = models.RoleAdmin
	}

	hash, err := utils.HashPassword(req.Password)
	if errors.Is(err, utils.ErrPasswordTooLong) {
		response.BadRequest(c, "password is too long")
		return
	}
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}

	user, err := h.repo.Create(c.Request.Context(), req.Email, hash, strings.TrimSpace(req.FullName), role)
	if err != nil {
		if !errors.Is(err, apperror.ErrConflict) {
			h.logger.Error("create user failed", zap.Error(err))
		}
		response.Error(c, err)
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Email, string(user.Role))
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	h.logger.Info("user registered", zap.String("user_id", user.ID.String()), zap.String("role", string(user.Role)))
	response.Created(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.repo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		h.logger.Error("load user failed", zap.Error(err))
		response.Internal(c, "failed to load user")
		return
	}
	hashed := ""
	if user != nil {
		hashed = user.Password
	}
	if !utils.CheckPassword(req.Password, hashed) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Email, string(user.Role))
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Me handles GET /auth/me. userIDKey is the gin context key set by the JWT middleware.
func (h *Handler) Me(userIDKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := c.MustGet(userIDKey).(uuid.UUID)
		if !ok {
			response.Unauthorized(c, "missing user context")
			return
		}
		user, err := h.repo.GetByID(c.Request.Context(), id)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, user.ToPublic())
	}
}
