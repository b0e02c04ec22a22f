// Package events is the event catalog: creation, public listing and host projections.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatherpass/backend/internal/ledger"
	"github.com/gatherpass/backend/internal/models"
	"github.com/gatherpass/backend/pkg/apperror"
)

// Store is the slice of the ledger the catalog reads and writes.
type Store interface {
	InTx(ctx context.Context, fn func(ledger.Tx) error) error
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	ListPublicEvents(ctx context.Context, filter models.EventFilter, now time.Time) ([]models.Event, error)
	ListHostedEvents(ctx context.Context, hostID uuid.UUID) ([]models.Event, error)
	ListAttendees(ctx context.Context, eventID uuid.UUID) ([]models.Attendee, error)
}

// CreateInput carries the host-supplied fields of a new event.
type CreateInput struct {
	Title       string
	Description string
	Category    models.Category
	PlaceName   string
	Location    string
	Date        time.Time
	Capacity    int // zero means models.DefaultCapacity
	PriceMinor  *int64
	ImageURL    string
}

// AttendeeList is the host's view of who registered for an event.
type AttendeeList struct {
	EventID   uuid.UUID         `json:"event_id"`
	Title     string            `json:"event_title"`
	Attendees []models.Attendee `json:"attendees"`
}

// Service implements the catalog operations.
type Service struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

// NewService creates a catalog service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, now: time.Now, logger: logger}
}

// ListPublic returns approved upcoming events, soonest first.
func (s *Service) ListPublic(ctx context.Context, filter models.EventFilter) ([]models.Event, error) {
	list, err := s.store.ListPublicEvents(ctx, filter, s.now())
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Event{}
	}
	return list, nil
}

// Create stores a new unapproved event owned by host.
func (s *Service) Create(ctx context.Context, host uuid.UUID, in CreateInput) (*models.Event, error) {
	e := &models.Event{
		HostID:      host,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		PlaceName:   in.PlaceName,
		Location:    in.Location,
		Date:        in.Date.UTC(),
		Capacity:    in.Capacity,
		PriceMinor:  in.PriceMinor,
		ImageURL:    in.ImageURL,
		Approved:    false,
	}
	if e.Capacity == 0 {
		e.Capacity = models.DefaultCapacity
	}
	if reason := e.Validate(s.now()); reason != "" {
		return nil, apperror.Validation(reason)
	}
	if err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		return tx.InsertEvent(ctx, e)
	}); err != nil {
		return nil, err
	}
	s.logger.Info("event created",
		zap.String("event_id", e.ID.String()),
		zap.String("host_id", host.String()),
		zap.String("category", string(e.Category)))
	return e, nil
}

// Get returns an event. Unapproved events are visible only to their host and admins.
func (s *Service) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Event, error) {
	e, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.Approved && e.HostID != actor.ID && !actor.IsAdmin() {
		return nil, apperror.NotFound("event not found")
	}
	return e, nil
}

// ListHosted returns the events host created, newest first.
func (s *Service) ListHosted(ctx context.Context, host uuid.UUID) ([]models.Event, error) {
	list, err := s.store.ListHostedEvents(ctx, host)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Event{}
	}
	return list, nil
}

// Attendees lists registrations of an event hosted by host.
func (s *Service) Attendees(ctx context.Context, host uuid.UUID, eventID uuid.UUID) (*AttendeeList, error) {
	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if e.HostID != host {
		return nil, apperror.Forbidden("only the host can view attendees")
	}
	list, err := s.store.ListAttendees(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Attendee{}
	}
	return &AttendeeList{EventID: e.ID, Title: e.Title, Attendees: list}, nil
}
