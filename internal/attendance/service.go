// Package attendance records one-time QR scans at the venue.
package attendance

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatherpass/backend/internal/ledger"
	"github.com/gatherpass/backend/internal/models"
	"github.com/gatherpass/backend/pkg/apperror"
)

// EventAttendeeScanned is the live-feed event name for a successful scan.
const EventAttendeeScanned = "attendee_scanned"

// Store is the slice of the ledger attendance uses.
type Store interface {
	InTx(ctx context.Context, fn func(ledger.Tx) error) error
}

// Publisher fans scan results out to the host's live feed.
type Publisher interface {
	Publish(ctx context.Context, eventID uuid.UUID, event string, payload any) error
}

// ScanResult is returned to the scanning host and broadcast on the feed.
type ScanResult struct {
	RegistrationID uuid.UUID `json:"registration_id"`
	EventID        uuid.UUID `json:"event_id"`
	EventTitle     string    `json:"event"`
	Attendee       string    `json:"user"`
	ScannedAt      time.Time `json:"scanned_at"`
}

// Service implements scan.
type Service struct {
	store     Store
	publisher Publisher
	now       func() time.Time
	logger    *zap.Logger
}

// NewService creates an attendance service. publisher may be nil.
func NewService(store Store, publisher Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, publisher: publisher, now: time.Now, logger: logger}
}

// Scan admits the holder of token to an event hosted by host. A token admits once.
func (s *Service) Scan(ctx context.Context, host uuid.UUID, token string) (*ScanResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperror.Validation("qr_token is required")
	}
	var res *ScanResult
	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		r, err := tx.LockRegistrationByToken(ctx, token)
		if err != nil {
			return err
		}
		if !r.Active() {
			return apperror.NotFound("invalid QR code")
		}
		e, err := tx.GetEvent(ctx, r.EventID)
		if err != nil {
			return err
		}
		if e.HostID != host {
			return apperror.Forbidden("only the host can scan tickets for this event")
		}
		if r.IsScanned() {
			return apperror.Conflict("ticket already scanned")
		}
		if err := r.Transition(models.StateScanned, s.now().UTC()); err != nil {
			return apperror.Wrap(apperror.KindConflict, "ticket cannot be scanned", err)
		}
		if err := tx.UpdateRegistration(ctx, r); err != nil {
			return err
		}
		u, err := tx.GetUser(ctx, r.UserID)
		if err != nil {
			return err
		}
		res = &ScanResult{
			RegistrationID: r.ID,
			EventID:        e.ID,
			EventTitle:     e.Title,
			Attendee:       u.FullName,
			ScannedAt:      *r.ScannedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ticket scanned",
		zap.String("registration_id", res.RegistrationID.String()),
		zap.String("event_id", res.EventID.String()),
		zap.String("host_id", host.String()))
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, res.EventID, EventAttendeeScanned, res); err != nil {
			s.logger.Warn("publish scan failed", zap.String("event_id", res.EventID.String()), zap.Error(err))
		}
	}
	return res, nil
}
