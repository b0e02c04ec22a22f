// Package analytics serves the host's per-event roll-up.
package analytics

import (
	"context"

	"github.com/google/uuid"

	"github.com/gatherpass/backend/internal/models"
	"github.com/gatherpass/backend/pkg/apperror"
)

// Store is the slice of the ledger analytics reads.
type Store interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	EventSummary(ctx context.Context, eventID uuid.UUID) (*models.EventSummary, error)
}

// Summary is the JSON shape of GET /hosted/:id/summary.
type Summary struct {
	models.EventSummary
	// AttendanceRate is scanned / (approved + scanned); nil until someone is admitted.
	AttendanceRate *float64 `json:"attendance_rate,omitempty"`
}

// Service computes event summaries.
type Service struct {
	store    Store
	currency string
}

// NewService creates an analytics service reporting revenue in currency.
func NewService(store Store, currency string) *Service {
	return &Service{store: store, currency: currency}
}

// EventSummary returns the roll-up for eventID. Only its host (or an admin) may read it.
func (s *Service) EventSummary(ctx context.Context, actor models.Actor, eventID uuid.UUID) (*Summary, error) {
	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if e.HostID != actor.ID && !actor.IsAdmin() {
		return nil, apperror.Forbidden("only the host can view this summary")
	}
	sum, err := s.store.EventSummary(ctx, eventID)
	if err != nil {
		return nil, err
	}
	sum.Currency = s.currency
	out := &Summary{EventSummary: *sum}
	if admitted := sum.Approved + sum.Scanned; admitted > 0 {
		rate := float64(sum.Scanned) / float64(admitted)
		out.AttendanceRate = &rate
	}
	return out, nil
}
