package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RegistrationState is the lifecycle position of a registration.
// A user with no registration row is in StateNone.
type RegistrationState string

const (
	StateNone           RegistrationState = ""
	StatePendingPayment RegistrationState = "pending_payment"
	StatePaidUnapproved RegistrationState = "paid_unapproved"
	StateApproved       RegistrationState = "approved"
	StateScanned        RegistrationState = "scanned"
)

var registrationTransitions = map[RegistrationState][]RegistrationState{
	StateNone:           {StatePendingPayment, StateApproved},
	StatePendingPayment: {StatePaidUnapproved, StateApproved},
	StatePaidUnapproved: {StateApproved},
	StateApproved:       {StateScanned},
	StateScanned:        nil,
}

// Valid reports whether s is a persisted state.
func (s RegistrationState) Valid() bool {
	switch s {
	case StatePendingPayment, StatePaidUnapproved, StateApproved, StateScanned:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s RegistrationState) CanTransitionTo(next RegistrationState) bool {
	for _, allowed := range registrationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Paid reports whether payment for the registration is settled.
func (s RegistrationState) Paid() bool {
	return s == StatePaidUnapproved || s == StateApproved || s == StateScanned
}

// Approved reports whether the registration is confirmed for entry.
func (s RegistrationState) Approved() bool {
	return s == StateApproved || s == StateScanned
}

// InitialState is the state a fresh registration enters for an event of the given category.
func InitialState(c Category) RegistrationState {
	if c == CategoryFree {
		return StateApproved
	}
	return StatePendingPayment
}

// TransitionError reports an illegal lifecycle move.
type TransitionError struct {
	From RegistrationState
	To   RegistrationState
}

func (e *TransitionError) Error() string {
	from := e.From
	if from == StateNone {
		from = "none"
	}
	return fmt.Sprintf("illegal registration transition %s -> %s", from, e.To)
}

// Registration is a user's claim on an event's capacity.
type Registration struct {
	ID               uuid.UUID         `json:"id"`
	UserID           uuid.UUID         `json:"user_id"`
	EventID          uuid.UUID         `json:"event_id"`
	State            RegistrationState `json:"state"`
	QRToken          string            `json:"qr_token"`
	ScannedAt        *time.Time        `json:"scanned_at,omitempty"`
	PaymentReference *string           `json:"payment_reference,omitempty"`
	QRImageKey       *string           `json:"-"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// IsPaid, IsApproved and IsScanned are the projections clients know.
func (r *Registration) IsPaid() bool     { return r.State.Paid() }
func (r *Registration) IsApproved() bool { return r.State.Approved() }
func (r *Registration) IsScanned() bool  { return r.State == StateScanned }

// Active reports whether the QR token is valid for attendance.
func (r *Registration) Active() bool { return r.State == StateApproved || r.State == StateScanned }

// Transition moves the registration to next, rejecting illegal moves.
// Entering StateScanned stamps ScannedAt with at.
func (r *Registration) Transition(next RegistrationState, at time.Time) error {
	if !r.State.CanTransitionTo(next) {
		return &TransitionError{From: r.State, To: next}
	}
	r.State = next
	r.UpdatedAt = at
	if next == StateScanned {
		t := at
		r.ScannedAt = &t
	}
	return nil
}

// RegistrationView is the flattened registration projection returned to clients.
type RegistrationView struct {
	ID               uuid.UUID         `json:"id"`
	EventID          uuid.UUID         `json:"event_id"`
	State            RegistrationState `json:"state"`
	IsPaid           bool              `json:"is_paid"`
	IsApproved       bool              `json:"is_approved"`
	IsScanned        bool              `json:"is_scanned"`
	ScannedAt        *time.Time        `json:"scanned_at"`
	QRToken          string            `json:"qr_token,omitempty"`
	QRImage          string            `json:"qr_image,omitempty"`
	PaymentReference *string           `json:"payment_reference,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// View projects r for its owner. The token is withheld until the registration is active.
func (r *Registration) View() RegistrationView {
	v := RegistrationView{
		ID:               r.ID,
		EventID:          r.EventID,
		State:            r.State,
		IsPaid:           r.IsPaid(),
		IsApproved:       r.IsApproved(),
		IsScanned:        r.IsScanned(),
		ScannedAt:        r.ScannedAt,
		PaymentReference: r.PaymentReference,
		CreatedAt:        r.CreatedAt,
	}
	if r.Active() {
		v.QRToken = r.QRToken
	}
	return v
}

// MyRegistration pairs a registration with the event it belongs to.
type MyRegistration struct {
	RegistrationView
	Title     string    `json:"title"`
	PlaceName string    `json:"place_name"`
	Location  string    `json:"location"`
	Date      time.Time `json:"date"`
	Category  Category  `json:"category"`

	QRImageKey *string `json:"-"`
}

// Attendee is one row of a host's attendee list.
type Attendee struct {
	RegistrationID uuid.UUID         `json:"registration_id"`
	UserID         uuid.UUID         `json:"user_id"`
	FullName       string            `json:"username"`
	Email          string            `json:"email"`
	State          RegistrationState `json:"state"`
	IsPaid         bool              `json:"is_paid"`
	IsApproved     bool              `json:"is_approved"`
	IsScanned      bool              `json:"is_scanned"`
	ScannedAt      *time.Time        `json:"scanned_at"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Project fills the flag projections from State.
func (a *Attendee) Project() {
	a.IsPaid = a.State.Paid()
	a.IsApproved = a.State.Approved()
	a.IsScanned = a.State == StateScanned
}
