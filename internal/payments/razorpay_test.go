package payments

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRazorpayCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "shh", pass)

		var req createOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.EqualValues(t, 50000, req.Amount)
		assert.Equal(t, "INR", req.Currency)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "order_123", "amount": req.Amount, "currency": req.Currency, "receipt": req.Receipt, "status": "created",
		})
	}))
	defer srv.Close()

	gw := NewRazorpay(RazorpayConfig{KeyID: "rzp_test_key", KeySecret: "shh", BaseURL: srv.URL + "/"}, srv.Client())
	order, err := gw.CreateOrder(context.Background(), 50000, "INR", "rcpt")
	require.NoError(t, err)
	assert.Equal(t, "order_123", order.ID)
	assert.EqualValues(t, 50000, order.AmountMinor)
}

func TestRazorpayCreateOrderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount too small"}}`))
	}))
	defer srv.Close()

	gw := NewRazorpay(RazorpayConfig{KeyID: "k", KeySecret: "s", BaseURL: srv.URL}, nil)
	_, err := gw.CreateOrder(context.Background(), 1, "INR", "r")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amount too small")

	_, err = NewRazorpay(RazorpayConfig{}, nil).CreateOrder(context.Background(), 100, "INR", "r")
	assert.ErrorIs(t, err, errNotConfigured)
}

func TestRazorpayCreateOrderHonoursDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	gw := NewRazorpay(RazorpayConfig{KeyID: "k", KeySecret: "s", BaseURL: srv.URL}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := gw.CreateOrder(ctx, 100, "INR", "r")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRazorpayVerifySignature(t *testing.T) {
	gw := NewRazorpay(RazorpayConfig{KeyID: "k", KeySecret: "secret"}, nil)
	good := hex.EncodeToString(Sign("secret", "order_1", "pay_1"))

	ok, err := gw.VerifySignature(context.Background(), "order_1", "pay_1", good)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = gw.VerifySignature(context.Background(), "order_1", "pay_2", good)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = gw.VerifySignature(context.Background(), "order_1", "pay_1", "zz-not-hex")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = NewRazorpay(RazorpayConfig{}, nil).VerifySignature(context.Background(), "o", "p", good)
	assert.Error(t, err)
}
