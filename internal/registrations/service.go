// Package registrations owns joining events and the attendee's view of their tickets.
package registrations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatherpass/backend/internal/ledger"
	"github.com/gatherpass/backend/internal/models"
	"github.com/gatherpass/backend/pkg/apperror"
	"github.com/gatherpass/backend/pkg/qrcode"
	"github.com/gatherpass/backend/pkg/utils"
)

const tokenBytes = 24

// Store is the slice of the ledger this package uses.
type Store interface {
	InTx(ctx context.Context, fn func(ledger.Tx) error) error
	GetRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	ListUserRegistrations(ctx context.Context, userID uuid.UUID) ([]models.MyRegistration, error)
}

// QRJobs schedules background rendering of a registration's QR image.
type QRJobs interface {
	EnqueueQRRender(ctx context.Context, registrationID uuid.UUID) error
}

// Presigner turns a stored QR image key into a time-limited URL.
type Presigner interface {
	PresignQR(ctx context.Context, key string) (string, error)
}

// Service implements joinEvent and the attendee projections.
type Service struct {
	store     Store
	jobs      QRJobs
	presigner Presigner
	now       func() time.Time
	newToken  func() (string, error)
	logger    *zap.Logger
}

// NewService creates a registrations service. jobs and presigner may be nil.
func NewService(store Store, jobs QRJobs, presigner Presigner, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		jobs:      jobs,
		presigner: presigner,
		now:       time.Now,
		newToken:  func() (string, error) { return utils.NewToken(tokenBytes) },
		logger:    logger,
	}
}

// Join registers user for eventID. Free events admit immediately; paid events await payment.
func (s *Service) Join(ctx context.Context, user uuid.UUID, eventID uuid.UUID) (*models.Registration, error) {
	token, err := s.newToken()
	if err != nil {
		return nil, fmt.Errorf("generate qr token: %w", err)
	}
	var reg *models.Registration
	err = s.store.InTx(ctx, func(tx ledger.Tx) error {
		e, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		now := s.now()
		if !e.Joinable(now) {
			return apperror.NotFound("event not found")
		}
		if e.HostID == user {
			return apperror.Forbidden("hosts cannot join their own event")
		}
		exists, err := tx.RegistrationExists(ctx, user, eventID)
		if err != nil {
			return err
		}
		if exists {
			return apperror.Conflict("already registered for this event")
		}
		n, err := tx.CountRegistrations(ctx, eventID)
		if err != nil {
			return err
		}
		if n >= e.Capacity {
			return apperror.CapacityExceeded("event capacity full")
		}

		r := &models.Registration{UserID: user, EventID: eventID, QRToken: token}
		if err := r.Transition(models.InitialState(e.Category), now); err != nil {
			return apperror.Wrap(apperror.KindConflict, "cannot register", err)
		}
		if err := tx.InsertRegistration(ctx, r); err != nil {
			return err
		}
		reg = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("registration created",
		zap.String("registration_id", reg.ID.String()),
		zap.String("event_id", eventID.String()),
		zap.String("user_id", user.String()),
		zap.String("state", string(reg.State)))
	if reg.Active() {
		s.scheduleQR(ctx, reg.ID)
	}
	return reg, nil
}

func (s *Service) scheduleQR(ctx context.Context, id uuid.UUID) {
	if s.jobs == nil {
		return
	}
	if err := s.jobs.EnqueueQRRender(ctx, id); err != nil {
		s.logger.Warn("enqueue qr render failed", zap.String("registration_id", id.String()), zap.Error(err))
	}
}

// ListMine returns user's registrations with event summaries, soonest event first.
func (s *Service) ListMine(ctx context.Context, user uuid.UUID) ([]models.MyRegistration, error) {
	list, err := s.store.ListUserRegistrations(ctx, user)
	if err != nil {
		return nil, err
	}
	if list == nil {
		return []models.MyRegistration{}, nil
	}
	for i := range list {
		m := &list[i]
		if m.QRToken == "" {
			continue
		}
		m.QRImage = QRImagePath(m.ID)
		if m.QRImageKey != nil && s.presigner != nil {
			url, err := s.presigner.PresignQR(ctx, *m.QRImageKey)
			if err != nil {
				s.logger.Warn("presign qr failed", zap.String("registration_id", m.ID.String()), zap.Error(err))
				continue
			}
			m.QRImage = url
		}
	}
	return list, nil
}

// QRImagePath is the on-demand PNG endpoint for a registration.
func QRImagePath(id uuid.UUID) string {
	return "/registrations/" + id.String() + "/qr.png"
}

// RenderQR returns the PNG for the caller's own active registration.
// Foreign or inactive registrations are reported as NotFound.
func (s *Service) RenderQR(ctx context.Context, user uuid.UUID, id uuid.UUID) ([]byte, error) {
	r, err := s.store.GetRegistration(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.UserID != user || !r.Active() {
		return nil, apperror.NotFound("registration not found")
	}
	return qrcode.PNG(r.QRToken, qrcode.DefaultSize)
}
