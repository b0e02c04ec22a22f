// Package payments reconciles gateway orders with registrations.
package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatherpass/backend/internal/ledger"
	"github.com/gatherpass/backend/internal/models"
	"github.com/gatherpass/backend/pkg/apperror"
)

// Store is the slice of the ledger payments use.
type Store interface {
	InTx(ctx context.Context, fn func(ledger.Tx) error) error
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	GetRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	GetOrderByProviderID(ctx context.Context, providerOrderID string) (*models.PaymentOrder, error)
	IncrementVerifyAttempts(ctx context.Context, orderID uuid.UUID) error
}

// QRJobs schedules background rendering of a registration's QR image.
type QRJobs interface {
	EnqueueQRRender(ctx context.Context, registrationID uuid.UUID) error
}

// Options tune the service.
type Options struct {
	Currency       string
	GatewayTimeout time.Duration
}

// Order is returned to the client to open checkout.
type Order struct {
	OrderID        string    `json:"order_id"`
	RegistrationID uuid.UUID `json:"registration_id"`
	AmountMinor    int64     `json:"amount"`
	Currency       string    `json:"currency"`
	KeyID          string    `json:"key"`
}

// VerifyInput is the checkout callback payload.
type VerifyInput struct {
	OrderID   string
	PaymentID string
	Signature string
}

// Service implements createOrder and verifyPayment.
type Service struct {
	store   Store
	gateway Gateway
	jobs    QRJobs
	opts    Options
	now     func() time.Time
	logger  *zap.Logger
}

// NewService creates a payments service. jobs may be nil.
func NewService(store Store, gateway Gateway, jobs QRJobs, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 10 * time.Second
	}
	return &Service{store: store, gateway: gateway, jobs: jobs, opts: opts, now: time.Now, logger: logger}
}

// CreateOrder opens a gateway order for the caller's unpaid registration.
// Earlier open orders of the registration are superseded and marked failed.
// A superseded order still settles if the gateway later confirms its payment.
func (s *Service) CreateOrder(ctx context.Context, user uuid.UUID, registrationID uuid.UUID) (*Order, error) {
	reg, err := s.store.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.UserID != user {
		return nil, apperror.NotFound("registration not found")
	}
	if reg.State != models.StatePendingPayment {
		return nil, apperror.Conflict("registration is already paid")
	}
	e, err := s.store.GetEvent(ctx, reg.EventID)
	if err != nil {
		return nil, err
	}
	if !e.IsPaid() || e.PriceMinor == nil {
		return nil, apperror.Conflict("event does not require payment")
	}
	amount := *e.PriceMinor

	gctx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	gwOrder, err := s.gateway.CreateOrder(gctx, amount, s.opts.Currency, registrationID.String())
	cancel()
	if err != nil {
		s.logger.Warn("gateway create order failed", zap.String("registration_id", registrationID.String()), zap.Error(err))
		return nil, apperror.Wrap(apperror.KindGatewayUnavailable, "payment gateway unavailable", err)
	}

	order := &models.PaymentOrder{
		RegistrationID:  reg.ID,
		UserID:          user,
		EventID:         reg.EventID,
		ProviderOrderID: gwOrder.ID,
		AmountMinor:     amount,
		Currency:        s.opts.Currency,
		Status:          models.PaymentStatusCreated,
	}
	var superseded int
	err = s.store.InTx(ctx, func(tx ledger.Tx) error {
		locked, err := tx.LockRegistration(ctx, reg.ID)
		if err != nil {
			return err
		}
		if locked.State != models.StatePendingPayment {
			return apperror.Conflict("registration is already paid")
		}
		if superseded, err = tx.FailOpenOrders(ctx, reg.ID, s.now()); err != nil {
			return err
		}
		return tx.InsertOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment order created",
		zap.String("registration_id", reg.ID.String()),
		zap.String("event_id", reg.EventID.String()),
		zap.String("user_id", user.String()),
		zap.String("order_id", order.ProviderOrderID),
		zap.Int("superseded", superseded))
	return &Order{
		OrderID:        order.ProviderOrderID,
		RegistrationID: reg.ID,
		AmountMinor:    amount,
		Currency:       order.Currency,
		KeyID:          s.gateway.KeyID(),
	}, nil
}

// Verify checks the checkout signature and, when valid, marks the order paid and
// approves the registration it was opened for, in one transaction.
func (s *Service) Verify(ctx context.Context, user uuid.UUID, in VerifyInput) (*models.Registration, error) {
	if in.OrderID == "" || in.PaymentID == "" || in.Signature == "" {
		return nil, apperror.Validation("order_id, payment_id and signature are required")
	}
	order, err := s.store.GetOrderByProviderID(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != user {
		return nil, apperror.NotFound("payment order not found")
	}
	if order.Status.Terminal() {
		return nil, apperror.Conflict("payment order is " + string(order.Status))
	}

	gctx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	ok, err := s.gateway.VerifySignature(gctx, in.OrderID, in.PaymentID, in.Signature)
	cancel()
	if err != nil {
		s.logger.Warn("gateway verify failed", zap.String("order_id", in.OrderID), zap.Error(err))
		return nil, apperror.Wrap(apperror.KindGatewayUnavailable, "payment gateway unavailable", err)
	}
	if !ok {
		if err := s.store.IncrementVerifyAttempts(ctx, order.ID); err != nil {
			s.logger.Error("record verify attempt failed", zap.String("order_id", in.OrderID), zap.Error(err))
		}
		s.logger.Warn("payment signature rejected",
			zap.String("order_id", in.OrderID),
			zap.String("registration_id", order.RegistrationID.String()))
		return nil, apperror.New(apperror.KindPaymentVerificationFailed, "payment verification failed")
	}

	var reg *models.Registration
	approved, superseded := false, false
	err = s.store.InTx(ctx, func(tx ledger.Tx) error {
		o, err := tx.LockOrderByProviderID(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if !o.Status.CanTransitionTo(models.PaymentStatusPaid) {
			return apperror.Conflict("payment order is " + string(o.Status))
		}
		r, err := tx.LockRegistration(ctx, o.RegistrationID)
		if err != nil {
			return err
		}
		superseded = o.Status == models.PaymentStatusFailed
		now := s.now()
		o.Status = models.PaymentStatusPaid
		o.ProviderPaymentID = &in.PaymentID
		o.ProviderSignature = &in.Signature
		o.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if r.State.CanTransitionTo(models.StateApproved) {
			if err := r.Transition(models.StateApproved, now); err != nil {
				return err
			}
			r.PaymentReference = &in.PaymentID
			if err := tx.UpdateRegistration(ctx, r); err != nil {
				return err
			}
			approved = true
		}
		reg = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment verified",
		zap.String("order_id", in.OrderID),
		zap.String("registration_id", reg.ID.String()),
		zap.String("event_id", reg.EventID.String()),
		zap.String("user_id", user.String()),
		zap.Bool("approved", approved),
		zap.Bool("superseded", superseded))
	if !approved && reg.PaymentReference != nil && *reg.PaymentReference != in.PaymentID {
		s.logger.Warn("registration already paid by another order, refund required",
			zap.String("order_id", in.OrderID),
			zap.String("payment_id", in.PaymentID),
			zap.String("registration_id", reg.ID.String()))
	}
	if approved && s.jobs != nil {
		if err := s.jobs.EnqueueQRRender(ctx, reg.ID); err != nil {
			s.logger.Warn("enqueue qr render failed", zap.String("registration_id", reg.ID.String()), zap.Error(err))
		}
	}
	return reg, nil
}
