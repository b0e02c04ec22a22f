package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus of a gateway order. paid is terminal. failed marks an order
// superseded by a newer checkout; the gateway can still capture it, so a
// failed order may settle to paid.
type PaymentStatus string

const (
	PaymentStatusCreated PaymentStatus = "created"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusPaid
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusCreated:
		return next == PaymentStatusPaid || next == PaymentStatusFailed
	case PaymentStatusFailed:
		return next == PaymentStatusPaid
	}
	return false
}

// PaymentOrder is a gateway order opened for one registration.
type PaymentOrder struct {
	ID                uuid.UUID     `json:"id"`
	RegistrationID    uuid.UUID     `json:"registration_id"`
	UserID            uuid.UUID     `json:"user_id"`
	EventID           uuid.UUID     `json:"event_id"`
	ProviderOrderID   string        `json:"provider_order_id"`
	ProviderPaymentID *string       `json:"provider_payment_id,omitempty"`
	ProviderSignature *string       `json:"-"`
	AmountMinor       int64         `json:"amount_minor"`
	Currency          string        `json:"currency"`
	Status            PaymentStatus `json:"status"`
	VerifyAttempts    int           `json:"verify_attempts"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}
