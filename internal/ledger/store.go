// Package ledger persists events, registrations and payment orders.
//
// Every mutation of the registration lifecycle runs inside Store.InTx. The Tx
// passed to the callback exposes row-locking reads, so a check-then-write
// sequence (capacity, uniqueness, single scan) is evaluated against rows no
// other transaction can change until commit.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gatherpass/backend/internal/models"
)

// Tx is the unit of work handed to InTx callbacks.
type Tx interface {
	InsertEvent(ctx context.Context, e *models.Event) error
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	// LockEvent loads the event and holds a row lock until the transaction ends.
	LockEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	SetEventApproved(ctx context.Context, id uuid.UUID) error

	CountRegistrations(ctx context.Context, eventID uuid.UUID) (int, error)
	RegistrationExists(ctx context.Context, userID, eventID uuid.UUID) (bool, error)
	// InsertRegistration returns a Conflict error when (user, event) or the token is taken.
	InsertRegistration(ctx context.Context, r *models.Registration) error
	LockRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	LockRegistrationByToken(ctx context.Context, token string) (*models.Registration, error)
	UpdateRegistration(ctx context.Context, r *models.Registration) error

	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)

	InsertOrder(ctx context.Context, o *models.PaymentOrder) error
	LockOrderByProviderID(ctx context.Context, providerOrderID string) (*models.PaymentOrder, error)
	UpdateOrder(ctx context.Context, o *models.PaymentOrder) error
	// FailOpenOrders moves every created order of the registration to failed.
	FailOpenOrders(ctx context.Context, registrationID uuid.UUID, at time.Time) (int, error)
}

// Store is the ledger persistence boundary.
type Store interface {
	// InTx runs fn in one transaction. fn's error rolls everything back.
	InTx(ctx context.Context, fn func(Tx) error) error

	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	ListPublicEvents(ctx context.Context, filter models.EventFilter, now time.Time) ([]models.Event, error)
	ListHostedEvents(ctx context.Context, hostID uuid.UUID) ([]models.Event, error)
	ListPendingEvents(ctx context.Context) ([]models.Event, error)

	GetRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	ListUserRegistrations(ctx context.Context, userID uuid.UUID) ([]models.MyRegistration, error)
	ListAttendees(ctx context.Context, eventID uuid.UUID) ([]models.Attendee, error)
	SetQRImageKey(ctx context.Context, registrationID uuid.UUID, key string) error

	GetOrderByProviderID(ctx context.Context, providerOrderID string) (*models.PaymentOrder, error)
	// IncrementVerifyAttempts bumps the counter of an order not yet paid.
	IncrementVerifyAttempts(ctx context.Context, orderID uuid.UUID) error

	EventSummary(ctx context.Context, eventID uuid.UUID) (*models.EventSummary, error)
}
