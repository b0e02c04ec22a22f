package payments

import "context"

// GatewayOrder is an order opened at the payment provider.
type GatewayOrder struct {
	ID          string `json:"id"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
	Status      string `json:"status"`
}

// Gateway is the payment provider boundary. Implementations must honour ctx deadlines.
type Gateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*GatewayOrder, error)
	// VerifySignature reports whether signature authenticates the (order, payment) pair.
	// A non-nil error means the answer is unknown, not that the signature is bad.
	VerifySignature(ctx context.Context, orderID, paymentID, signature string) (bool, error)
	// KeyID is the public key the client checkout needs.
	KeyID() string
}
