package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherpass/backend/internal/auth"
	"github.com/gatherpass/backend/internal/models"
)

func init() { gin.SetMode(gin.TestMode) }

func TestJWTSetsActor(t *testing.T) {
	svc := auth.NewJWTService("secret", 1)
	id := uuid.New()
	token, err := svc.Generate(id, "a@example.com", string(models.RoleAdmin))
	require.NoError(t, err)

	r := gin.New()
	var got models.Actor
	r.GET("/me", JWT(svc), func(c *gin.Context) {
		got = Actor(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, got.ID)
	assert.True(t, got.IsAdmin())
}

func TestJWTRejectsMissingAndBadTokens(t *testing.T) {
	svc := auth.NewJWTService("secret", 1)
	r := gin.New()
	r.GET("/me", JWT(svc), func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, header := range []string{"", "Token abc", "Bearer not-a-jwt"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}
}

func TestRequireRole(t *testing.T) {
	r := gin.New()
	r.GET("/admin", func(c *gin.Context) {
		c.Set(ContextUserRole, c.Query("role"))
	}, RequireRole(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin?role=user", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin?role=admin", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

type stubLimiter struct {
	decision Decision
	err      error
	keys     []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (Decision, error) {
	s.keys = append(s.keys, key)
	return s.decision, s.err
}

func TestRateLimitBlocksWhenEmpty(t *testing.T) {
	l := &stubLimiter{decision: Decision{Allowed: false, RetryAfter: 1500 * time.Millisecond}}
	r := gin.New()
	r.POST("/events/:id/join", RateLimit(l, 5, nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/events/1/join", nil))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	require.Len(t, l.keys, 1)
	assert.Contains(t, l.keys[0], "/events/:id/join")
}

func TestRateLimitFailsOpen(t *testing.T) {
	l := &stubLimiter{err: errors.New("redis down")}
	r := gin.New()
	r.GET("/x", RateLimit(l, 5, nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://app.example"}))
	r.POST("/events", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/events", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
}
