package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/gatherpass/backend/internal/models"
	"github.com/gatherpass/backend/pkg/apperror"
)

const uniqueViolation = "23505"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgStore is the PostgreSQL ledger.
type PgStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	queries
}

// NewPgStore creates a ledger backed by pool.
func NewPgStore(pool *pgxpool.Pool, logger *zap.Logger) *PgStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PgStore{pool: pool, logger: logger, queries: queries{q: pool}}
}

// InTx begins a transaction, runs fn and commits, rolling back on any error.
func (s *PgStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
	}()
	if err := fn(&pgTx{queries{q: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", mapErr(err, "transaction"))
	}
	return nil
}

type pgTx struct {
	queries
}

// queries holds the SQL shared by the pool and transactions.
type queries struct {
	q querier
}

func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NotFound(what + " not found")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperror.Wrap(apperror.KindConflict, what+" already exists", err)
	}
	return err
}

const eventColumns = `e.id, e.host_id, COALESCE(u.full_name, ''), e.title, e.description, e.category,
	e.place_name, e.location, e.date, e.capacity, e.price_minor, e.image_url, e.approved, e.created_at,
	(SELECT COUNT(*) FROM registrations r WHERE r.event_id = e.id)`

func scanEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	err := row.Scan(&e.ID, &e.HostID, &e.HostName, &e.Title, &e.Description, &e.Category,
		&e.PlaceName, &e.Location, &e.Date, &e.Capacity, &e.PriceMinor, &e.ImageURL, &e.Approved, &e.CreatedAt,
		&e.AttendeesCount)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func collectEvents(rows pgx.Rows) ([]models.Event, error) {
	defer rows.Close()
	var list []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

func (x queries) InsertEvent(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events (host_id, title, description, category, place_name, location, date, capacity, price_minor, image_url, approved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`
	err := x.q.QueryRow(ctx, q, e.HostID, e.Title, e.Description, e.Category, e.PlaceName, e.Location,
		e.Date, e.Capacity, e.PriceMinor, e.ImageURL, e.Approved).Scan(&e.ID, &e.CreatedAt)
	return mapErr(err, "event")
}

func (x queries) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events e LEFT JOIN users u ON u.id = e.host_id WHERE e.id = $1`
	e, err := scanEvent(x.q.QueryRow(ctx, q, id))
	if err != nil {
		return nil, mapErr(err, "event")
	}
	return e, nil
}

func (x queries) LockEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	const q = `SELECT id, host_id, title, description, category, place_name, location, date, capacity,
		price_minor, image_url, approved, created_at
		FROM events WHERE id = $1 FOR UPDATE`
	var e models.Event
	err := x.q.QueryRow(ctx, q, id).Scan(&e.ID, &e.HostID, &e.Title, &e.Description, &e.Category,
		&e.PlaceName, &e.Location, &e.Date, &e.Capacity, &e.PriceMinor, &e.ImageURL, &e.Approved, &e.CreatedAt)
	if err != nil {
		return nil, mapErr(err, "event")
	}
	return &e, nil
}

func (x queries) SetEventApproved(ctx context.Context, id uuid.UUID) error {
	tag, err := x.q.Exec(ctx, `UPDATE events SET approved = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("event not found")
	}
	return nil
}

func (x queries) ListPublicEvents(ctx context.Context, filter models.EventFilter, now time.Time) ([]models.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events e LEFT JOIN users u ON u.id = e.host_id
		WHERE e.approved AND e.date >= $1
		AND ($2 = '' OR e.place_name ILIKE '%' || $2 || '%' OR e.location ILIKE '%' || $2 || '%')
		ORDER BY e.date ASC`
	rows, err := x.q.Query(ctx, q, now, filter.Location)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

func (x queries) ListHostedEvents(ctx context.Context, hostID uuid.UUID) ([]models.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events e LEFT JOIN users u ON u.id = e.host_id
		WHERE e.host_id = $1 ORDER BY e.created_at DESC`
	rows, err := x.q.Query(ctx, q, hostID)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

func (x queries) ListPendingEvents(ctx context.Context) ([]models.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events e LEFT JOIN users u ON u.id = e.host_id
		WHERE NOT e.approved ORDER BY e.created_at ASC`
	rows, err := x.q.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

func (x queries) CountRegistrations(ctx context.Context, eventID uuid.UUID) (int, error) {
	var n int
	err := x.q.QueryRow(ctx, `SELECT COUNT(*) FROM registrations WHERE event_id = $1`, eventID).Scan(&n)
	return n, err
}

func (x queries) RegistrationExists(ctx context.Context, userID, eventID uuid.UUID) (bool, error) {
	var ok bool
	err := x.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM registrations WHERE user_id = $1 AND event_id = $2)`, userID, eventID).Scan(&ok)
	return ok, err
}

const registrationColumns = `id, user_id, event_id, state, qr_token, scanned_at, payment_reference, qr_image_key, created_at, updated_at`

func scanRegistration(row pgx.Row) (*models.Registration, error) {
	var r models.Registration
	err := row.Scan(&r.ID, &r.UserID, &r.EventID, &r.State, &r.QRToken, &r.ScannedAt,
		&r.PaymentReference, &r.QRImageKey, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (x queries) InsertRegistration(ctx context.Context, r *models.Registration) error {
	const q = `INSERT INTO registrations (user_id, event_id, state, qr_token, scanned_at, payment_reference)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`
	err := x.q.QueryRow(ctx, q, r.UserID, r.EventID, r.State, r.QRToken, r.ScannedAt, r.PaymentReference).
		Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	return mapErr(err, "registration")
}

func (x queries) GetRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	r, err := scanRegistration(x.q.QueryRow(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "registration")
	}
	return r, nil
}

func (x queries) LockRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	r, err := scanRegistration(x.q.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, mapErr(err, "registration")
	}
	return r, nil
}

func (x queries) LockRegistrationByToken(ctx context.Context, token string) (*models.Registration, error) {
	r, err := scanRegistration(x.q.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE qr_token = $1 FOR UPDATE`, token))
	if err != nil {
		return nil, mapErr(err, "registration")
	}
	return r, nil
}

func (x queries) UpdateRegistration(ctx context.Context, r *models.Registration) error {
	const q = `UPDATE registrations SET state = $2, scanned_at = $3, payment_reference = $4, updated_at = $5
		WHERE id = $1`
	tag, err := x.q.Exec(ctx, q, r.ID, r.State, r.ScannedAt, r.PaymentReference, r.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("registration not found")
	}
	return nil
}

func (x queries) SetQRImageKey(ctx context.Context, registrationID uuid.UUID, key string) error {
	_, err := x.q.Exec(ctx, `UPDATE registrations SET qr_image_key = $2 WHERE id = $1`, registrationID, key)
	return err
}

func (x queries) ListUserRegistrations(ctx context.Context, userID uuid.UUID) ([]models.MyRegistration, error) {
	const q = `SELECT r.id, r.user_id, r.event_id, r.state, r.qr_token, r.scanned_at, r.payment_reference,
		r.qr_image_key, r.created_at, r.updated_at,
		e.title, e.place_name, e.location, e.date, e.category
		FROM registrations r JOIN events e ON e.id = r.event_id
		WHERE r.user_id = $1 ORDER BY e.date ASC`
	rows, err := x.q.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.MyRegistration
	for rows.Next() {
		var r models.Registration
		var m models.MyRegistration
		if err := rows.Scan(&r.ID, &r.UserID, &r.EventID, &r.State, &r.QRToken, &r.ScannedAt, &r.PaymentReference,
			&r.QRImageKey, &r.CreatedAt, &r.UpdatedAt,
			&m.Title, &m.PlaceName, &m.Location, &m.Date, &m.Category); err != nil {
			return nil, err
		}
		m.RegistrationView = r.View()
		m.QRImageKey = r.QRImageKey
		list = append(list, m)
	}
	return list, rows.Err()
}

func (x queries) ListAttendees(ctx context.Context, eventID uuid.UUID) ([]models.Attendee, error) {
	const q = `SELECT r.id, r.user_id, u.full_name, u.email, r.state, r.scanned_at, r.created_at
		FROM registrations r JOIN users u ON u.id = r.user_id
		WHERE r.event_id = $1 ORDER BY r.created_at ASC`
	rows, err := x.q.Query(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Attendee
	for rows.Next() {
		var a models.Attendee
		if err := rows.Scan(&a.RegistrationID, &a.UserID, &a.FullName, &a.Email, &a.State, &a.ScannedAt, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Project()
		list = append(list, a)
	}
	return list, rows.Err()
}

func (x queries) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := x.q.QueryRow(ctx, `SELECT id, email, full_name, role, created_at, updated_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapErr(err, "user")
	}
	return &u, nil
}

const orderColumns = `id, registration_id, user_id, event_id, provider_order_id, provider_payment_id, provider_signature,
	amount_minor, currency, status, verify_attempts, created_at, updated_at`

func scanOrder(row pgx.Row) (*models.PaymentOrder, error) {
	var o models.PaymentOrder
	err := row.Scan(&o.ID, &o.RegistrationID, &o.UserID, &o.EventID, &o.ProviderOrderID, &o.ProviderPaymentID,
		&o.ProviderSignature, &o.AmountMinor, &o.Currency, &o.Status, &o.VerifyAttempts, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (x queries) InsertOrder(ctx context.Context, o *models.PaymentOrder) error {
	const q = `INSERT INTO payment_orders (registration_id, user_id, event_id, provider_order_id, amount_minor, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	err := x.q.QueryRow(ctx, q, o.RegistrationID, o.UserID, o.EventID, o.ProviderOrderID, o.AmountMinor, o.Currency, o.Status).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	return mapErr(err, "payment order")
}

func (x queries) GetOrderByProviderID(ctx context.Context, providerOrderID string) (*models.PaymentOrder, error) {
	o, err := scanOrder(x.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM payment_orders WHERE provider_order_id = $1`, providerOrderID))
	if err != nil {
		return nil, mapErr(err, "payment order")
	}
	return o, nil
}

func (x queries) LockOrderByProviderID(ctx context.Context, providerOrderID string) (*models.PaymentOrder, error) {
	o, err := scanOrder(x.q.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM payment_orders WHERE provider_order_id = $1 FOR UPDATE`, providerOrderID))
	if err != nil {
		return nil, mapErr(err, "payment order")
	}
	return o, nil
}

func (x queries) UpdateOrder(ctx context.Context, o *models.PaymentOrder) error {
	const q = `UPDATE payment_orders SET status = $2, provider_payment_id = $3, provider_signature = $4,
		verify_attempts = $5, updated_at = $6 WHERE id = $1`
	_, err := x.q.Exec(ctx, q, o.ID, o.Status, o.ProviderPaymentID, o.ProviderSignature, o.VerifyAttempts, o.UpdatedAt)
	return err
}

func (x queries) FailOpenOrders(ctx context.Context, registrationID uuid.UUID, at time.Time) (int, error) {
	tag, err := x.q.Exec(ctx, `UPDATE payment_orders SET status = 'failed', updated_at = $2
		WHERE registration_id = $1 AND status = 'created'`, registrationID, at)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (x queries) IncrementVerifyAttempts(ctx context.Context, orderID uuid.UUID) error {
	_, err := x.q.Exec(ctx, `UPDATE payment_orders SET verify_attempts = verify_attempts + 1, updated_at = NOW()
		WHERE id = $1 AND status <> 'paid'`, orderID)
	return err
}

func (x queries) EventSummary(ctx context.Context, eventID uuid.UUID) (*models.EventSummary, error) {
	const q = `SELECT e.id, e.title, e.capacity,
		COUNT(r.id),
		COUNT(r.id) FILTER (WHERE r.state = 'pending_payment'),
		COUNT(r.id) FILTER (WHERE r.state = 'paid_unapproved'),
		COUNT(r.id) FILTER (WHERE r.state = 'approved'),
		COUNT(r.id) FILTER (WHERE r.state = 'scanned'),
		COALESCE((SELECT SUM(p.amount_minor) FROM payment_orders p WHERE p.event_id = e.id AND p.status = 'paid'), 0)
		FROM events e LEFT JOIN registrations r ON r.event_id = e.id
		WHERE e.id = $1
		GROUP BY e.id`
	var s models.EventSummary
	err := x.q.QueryRow(ctx, q, eventID).Scan(&s.EventID, &s.Title, &s.Capacity, &s.Registrations,
		&s.PendingPayment, &s.PaidUnapproved, &s.Approved, &s.Scanned, &s.RevenueMinor)
	if err != nil {
		return nil, mapErr(err, "event")
	}
	s.Finalize()
	return &s, nil
}
