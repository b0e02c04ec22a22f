package middleware

import (
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/gatherpass/backend/internal/models"
	"github.com/gatherpass/backend/pkg/apperror"
	"github.com/gatherpass/backend/pkg/response"
)

// RequireRole admits callers whose JWT role is one of roles. Must run after JWT.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := c.Get(ContextUserRole)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		name, _ := role.(string)
		if !slices.Contains(roles, models.Role(name)) {
			response.Error(c, apperror.Forbidden("insufficient permissions"))
			c.Abort()
			return
		}
		c.Next()
	}
}
