package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/gatherpass/backend/internal/middleware"
	"github.com/gatherpass/backend/internal/models"
)

func TestVerifyHandlerStatusCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t)
	f.openOrder(t, "order_A")
	f.gw.On("VerifySignature", mock.Anything, "order_A", "pay_1", "bad").Return(false, nil)
	f.gw.On("VerifySignature", mock.Anything, "order_A", "pay_1", "down").Return(false, context.DeadlineExceeded)
	f.gw.On("VerifySignature", mock.Anything, "order_A", "pay_1", "good").Return(true, nil)

	h := NewHandler(f.svc, nil)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, f.user)
		c.Set(middleware.ContextUserRole, string(models.RoleUser))
	})
	r.POST("/payments/verify", h.Verify)
	r.POST("/payments/create/:registrationId", h.Create)

	verify := func(sig string) *httptest.ResponseRecorder {
		raw, _ := json.Marshal(map[string]string{"order_id": "order_A", "payment_id": "pay_1", "signature": sig})
		req := httptest.NewRequest(http.MethodPost, "/payments/verify", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusPaymentRequired, verify("bad").Code)
	assert.Equal(t, http.StatusServiceUnavailable, verify("down").Code)
	w := verify("good")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"verified":true`)
	assert.Contains(t, w.Body.String(), `"is_approved":true`)
	assert.Equal(t, http.StatusConflict, verify("good").Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/payments/create/"+f.reg.ID.String(), nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}
