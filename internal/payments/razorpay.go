package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RazorpayConfig holds the credentials and endpoint of the Razorpay API.
type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	BaseURL   string // e.g. https://api.razorpay.com
}

// Razorpay implements Gateway against the Razorpay orders API.
type Razorpay struct {
	cfg    RazorpayConfig
	client *http.Client
}

var errNotConfigured = errors.New("razorpay: credentials not configured")

// NewRazorpay creates a Razorpay gateway. client may be nil.
func NewRazorpay(cfg RazorpayConfig, client *http.Client) *Razorpay {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.razorpay.com"
	}
	return &Razorpay{cfg: cfg, client: client}
}

// KeyID implements Gateway.
func (r *Razorpay) KeyID() string { return r.cfg.KeyID }

type createOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type apiError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder implements Gateway.
func (r *Razorpay) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*GatewayOrder, error) {
	if r.cfg.KeyID == "" || r.cfg.KeySecret == "" {
		return nil, errNotConfigured
	}
	body, err := json.Marshal(createOrderRequest{Amount: amountMinor, Currency: currency, Receipt: receipt})
	if err != nil {
		return nil, fmt.Errorf("marshal order request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create order request: %w", err)
	}
	req.SetBasicAuth(r.cfg.KeyID, r.cfg.KeySecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send order request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read order response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Description != "" {
			return nil, fmt.Errorf("razorpay: %s: %s", apiErr.Error.Code, apiErr.Error.Description)
		}
		return nil, fmt.Errorf("razorpay: unexpected status %d", resp.StatusCode)
	}

	var order GatewayOrder
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}
	if order.ID == "" {
		return nil, errors.New("razorpay: order response without id")
	}
	return &order, nil
}

// VerifySignature implements Gateway. The signature is hex HMAC-SHA256 of "order_id|payment_id".
func (r *Razorpay) VerifySignature(ctx context.Context, orderID, paymentID, signature string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if r.cfg.KeySecret == "" {
		return false, errNotConfigured
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false, nil
	}
	return hmac.Equal(got, Sign(r.cfg.KeySecret, orderID, paymentID)), nil
}

// Sign computes the raw checkout signature for an order and payment.
func Sign(secret, orderID, paymentID string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return mac.Sum(nil)
}
