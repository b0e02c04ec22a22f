package models

import "github.com/google/uuid"

// EventSummary is the host's attendance and revenue roll-up for one event.
type EventSummary struct {
	EventID           uuid.UUID `json:"event_id"`
	Title             string    `json:"title"`
	Capacity          int       `json:"capacity"`
	Registrations     int       `json:"registrations"`
	PendingPayment    int       `json:"pending_payment"`
	PaidUnapproved    int       `json:"paid_unapproved"`
	Approved          int       `json:"approved"`
	Scanned           int       `json:"scanned"`
	NoShow            int       `json:"no_show"`
	CapacityRemaining int       `json:"capacity_remaining"`
	RevenueMinor      int64     `json:"revenue_minor"`
	Currency          string    `json:"currency"`
}

// Finalize derives the computed columns from the counters.
func (s *EventSummary) Finalize() {
	s.NoShow = s.Approved
	s.CapacityRemaining = s.Capacity - s.Registrations
	if s.CapacityRemaining < 0 {
		s.CapacityRemaining = 0
	}
}
