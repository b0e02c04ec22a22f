package analytics

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

	"github.com/gatherpass/backend/internal/ledger"
	"github.com/gatherpass/backend/internal/ledger/ledgertest"
	"github.com/gatherpass/backend/internal/middleware"
	"github.com/gatherpass/backend/internal/models"
	"github.com/gatherpass/backend/pkg/apperror"
)

func seed(t *testing.T) (*ledgertest.Store, models.Event) {
	t.Helper()
	store := ledgertest.New()
	price := int64(50000)
	e := store.AddEvent(models.Event{
		HostID: uuid.New(), Title: "Jazz night", Category: models.CategoryPaid, PriceMinor: &price,
		Approved: true, Date: time.Now().Add(24 * time.Hour), Capacity: 10,
	})
	scannedAt := time.Now()
	for _, st := range []models.RegistrationState{
		models.StatePendingPayment, models.StateApproved, models.StateApproved, models.StateScanned,
	} {
		r := models.Registration{UserID: uuid.New(), EventID: e.ID, State: st}
		if st == models.StateScanned {
			r.ScannedAt = &scannedAt
		}
		r = store.AddRegistration(r)
		if st != models.StatePendingPayment {
			ctx := context.Background()
			require.NoError(t, store.InTx(ctx, func(tx ledger.Tx) error {
				return tx.InsertOrder(ctx, &models.PaymentOrder{
					RegistrationID: r.ID, UserID: r.UserID, EventID: e.ID,
					ProviderOrderID: "order_" + r.ID.String(), AmountMinor: price,
					Currency: "INR", Status: models.PaymentStatusPaid,
				})
			}))
		}
	}
	return store, e
}

func TestEventSummary(t *testing.T) {
	store, e := seed(t)
	svc := NewService(store, "INR")

	sum, err := svc.EventSummary(context.Background(), models.Actor{ID: e.HostID, Role: models.RoleUser}, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Registrations)
	assert.Equal(t, 1, sum.PendingPayment)
	assert.Equal(t, 2, sum.Approved)
	assert.Equal(t, 1, sum.Scanned)
	assert.Equal(t, 2, sum.NoShow)
	assert.Equal(t, 6, sum.CapacityRemaining)
	assert.Equal(t, int64(150000), sum.RevenueMinor)
	assert.Equal(t, "INR", sum.Currency)
	require.NotNil(t, sum.AttendanceRate)
	assert.InDelta(t, 1.0/3.0, *sum.AttendanceRate, 1e-9)
}

func TestEventSummaryAccess(t *testing.T) {
	store, e := seed(t)
	svc := NewService(store, "INR")
	ctx := context.Background()

	_, err := svc.EventSummary(ctx, models.Actor{ID: uuid.New(), Role: models.RoleUser}, e.ID)
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	_, err = svc.EventSummary(ctx, models.Actor{ID: uuid.New(), Role: models.RoleAdmin}, e.ID)
	assert.NoError(t, err)

	_, err = svc.EventSummary(ctx, models.Actor{ID: e.HostID}, uuid.New())
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestSummaryHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, e := seed(t)
	h := NewHandler(NewService(store, "INR"), nil)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, e.HostID)
		c.Set(middleware.ContextUserRole, string(models.RoleUser))
	})
	r.GET("/hosted/:id/summary", h.Summary)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/hosted/"+e.ID.String()+"/summary", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"no_show":2`)
	assert.Contains(t, w.Body.String(), `"revenue_minor":150000`)
}
