package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category decides whether joining an event goes through payment.
type Category string

const (
	CategoryFree Category = "free"
	CategoryPaid Category = "paid"
)

// DefaultCapacity applies when an event is created without a capacity.
const DefaultCapacity = 50

// Event is a hosted event. PriceMinor is in minor currency units and is set iff Category is paid.
type Event struct {
	ID             uuid.UUID `json:"id"`
	HostID         uuid.UUID `json:"host_id"`
	HostName       string    `json:"host,omitempty"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Category       Category  `json:"category"`
	PlaceName      string    `json:"place_name"`
	Location       string    `json:"location"`
	Date           time.Time `json:"date"`
	Capacity       int       `json:"capacity"`
	PriceMinor     *int64    `json:"price_minor,omitempty"`
	ImageURL       string    `json:"image,omitempty"`
	Approved       bool      `json:"approved"`
	AttendeesCount int       `json:"attendees_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsPaid reports whether joining requires a gateway payment.
func (e *Event) IsPaid() bool { return e.Category == CategoryPaid }

// IsUpcoming reports whether the event is scheduled at or after now.
func (e *Event) IsUpcoming(now time.Time) bool { return !e.Date.Before(now) }

// Joinable reports whether the event accepts registrations at now.
func (e *Event) Joinable(now time.Time) bool { return e.Approved && e.IsUpcoming(now) }

// Remaining returns how many seats are left given the registration count.
func (e *Event) Remaining(registered int) int {
	if registered >= e.Capacity {
		return 0
	}
	return e.Capacity - registered
}

// Validate checks the catalog invariants of a new event.
// It returns a human readable reason or "" when the event is valid.
func (e *Event) Validate(now time.Time) string {
	switch {
	case strings.TrimSpace(e.Title) == "":
		return "title is required"
	case strings.TrimSpace(e.Description) == "":
		return "description is required"
	case strings.TrimSpace(e.Location) == "" && strings.TrimSpace(e.PlaceName) == "":
		return "location is required"
	case e.Category != CategoryFree && e.Category != CategoryPaid:
		return "category must be free or paid"
	case e.Capacity <= 0:
		return "capacity must be positive"
	case e.Date.IsZero():
		return "date is required"
	case e.Date.Before(now):
		return "date must be in the future"
	case e.Category == CategoryPaid && e.PriceMinor == nil:
		return "price is required for paid events"
	case e.Category == CategoryPaid && *e.PriceMinor <= 0:
		return "price must be positive"
	case e.Category == CategoryFree && e.PriceMinor != nil:
		return "free events cannot have a price"
	}
	return ""
}

// EventFilter narrows public listings.
type EventFilter struct {
	Location string // case-insensitive substring of place name or location
}
