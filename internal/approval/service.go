// Package approval gates events behind admin review and lets hosts admit
// registrations by hand (offline payment, comps).
package approval

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatherpass/backend/internal/ledger"
	"github.com/gatherpass/backend/internal/models"
	"github.com/gatherpass/backend/pkg/apperror"
)

// Store is the slice of the ledger approval uses.
type Store interface {
	InTx(ctx context.Context, fn func(ledger.Tx) error) error
	ListPendingEvents(ctx context.Context) ([]models.Event, error)
}

// QRJobs schedules background rendering of a registration's QR image.
type QRJobs interface {
	EnqueueQRRender(ctx context.Context, registrationID uuid.UUID) error
}

// Service implements the approval gate.
type Service struct {
	store  Store
	jobs   QRJobs
	now    func() time.Time
	logger *zap.Logger
}

// NewService creates an approval service. jobs may be nil.
func NewService(store Store, jobs QRJobs, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, jobs: jobs, now: time.Now, logger: logger}
}

// ApproveEvent publishes eventID. Approving twice is not an error.
func (s *Service) ApproveEvent(ctx context.Context, admin models.Actor, eventID uuid.UUID) (*models.Event, error) {
	if !admin.IsAdmin() {
		return nil, apperror.Forbidden("admin access required")
	}
	var out *models.Event
	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		e, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if !e.Approved {
			if err := tx.SetEventApproved(ctx, e.ID); err != nil {
				return err
			}
			e.Approved = true
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("event approved",
		zap.String("event_id", eventID.String()),
		zap.String("admin_id", admin.ID.String()))
	return out, nil
}

// ListPendingEvents returns events awaiting review, oldest first.
func (s *Service) ListPendingEvents(ctx context.Context, admin models.Actor) ([]models.Event, error) {
	if !admin.IsAdmin() {
		return nil, apperror.Forbidden("admin access required")
	}
	list, err := s.store.ListPendingEvents(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Event{}
	}
	return list, nil
}

// ApproveRegistration moves an unpaid or paid-but-unapproved registration to approved.
func (s *Service) ApproveRegistration(ctx context.Context, host uuid.UUID, registrationID uuid.UUID) (*models.Registration, error) {
	var reg *models.Registration
	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		r, err := tx.LockRegistration(ctx, registrationID)
		if err != nil {
			return err
		}
		e, err := tx.GetEvent(ctx, r.EventID)
		if err != nil {
			return err
		}
		if e.HostID != host {
			return apperror.Forbidden("only the host can approve registrations for this event")
		}
		if r.Active() {
			return apperror.Conflict("registration already approved")
		}
		if err := r.Transition(models.StateApproved, s.now().UTC()); err != nil {
			return apperror.Wrap(apperror.KindConflict, "registration cannot be approved", err)
		}
		if err := tx.UpdateRegistration(ctx, r); err != nil {
			return err
		}
		reg = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("registration approved by host",
		zap.String("registration_id", reg.ID.String()),
		zap.String("event_id", reg.EventID.String()),
		zap.String("host_id", host.String()))
	if s.jobs != nil {
		if err := s.jobs.EnqueueQRRender(ctx, reg.ID); err != nil {
			s.logger.Warn("enqueue qr render failed", zap.String("registration_id", reg.ID.String()), zap.Error(err))
		}
	}
	return reg, nil
}
