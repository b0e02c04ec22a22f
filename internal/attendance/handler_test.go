package attendance

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/gatherpass/backend/internal/middleware"
	"github.com/gatherpass/backend/internal/models"
)

func TestScanHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t)
	reg := f.ticket(models.StateApproved)
	h := NewHandler(f.svc, nil)

	router := func(caller uuid.UUID) *gin.Engine {
		r := gin.New()
		r.Use(func(c *gin.Context) {
			c.Set(middleware.ContextUserID, caller)
			c.Set(middleware.ContextUserRole, string(models.RoleUser))
		})
		r.POST("/events/scan-qr", h.Scan)
		return r
	}
	scan := func(r *gin.Engine, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/events/scan-qr", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	hostRouter := router(f.host.ID)
	assert.Equal(t, http.StatusBadRequest, scan(hostRouter, `{}`).Code)
	assert.Equal(t, http.StatusForbidden, scan(router(uuid.New()), `{"qr_token":"`+reg.QRToken+`"}`).Code)

	w := scan(hostRouter, `{"qr_token":"`+reg.QRToken+`"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user":"Guest Gita"`)

	assert.Equal(t, http.StatusConflict, scan(hostRouter, `{"qr_token":"`+reg.QRToken+`"}`).Code)
	assert.Equal(t, http.StatusNotFound, scan(hostRouter, `{"qr_token":"missing"}`).Code)
}
