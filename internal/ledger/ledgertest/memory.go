// Package ledgertest provides an in-memory ledger for service tests.
//
// Transactions are serialised by a single mutex and roll back by restoring a
// snapshot, which gives the same isolation a row lock gives in Postgres for
// the access patterns the services use.
package ledgertest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatherpass/backend/internal/ledger"
	"github.com/gatherpass/backend/internal/models"
	"github.com/gatherpass/backend/pkg/apperror"
)

type state struct {
	users         map[uuid.UUID]models.User
	events        map[uuid.UUID]models.Event
	registrations map[uuid.UUID]models.Registration
	orders        map[uuid.UUID]models.PaymentOrder
}

func (s *state) clone() *state {
	c := &state{
		users:         make(map[uuid.UUID]models.User, len(s.users)),
		events:        make(map[uuid.UUID]models.Event, len(s.events)),
		registrations: make(map[uuid.UUID]models.Registration, len(s.registrations)),
		orders:        make(map[uuid.UUID]models.PaymentOrder, len(s.orders)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.registrations {
		c.registrations[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	return c
}

// Store is an in-memory ledger.Store.
type Store struct {
	mu   sync.Mutex
	data *state
	fail map[string]error
	now  func() time.Time
}

var _ ledger.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		data: &state{
			users:         map[uuid.UUID]models.User{},
			events:        map[uuid.UUID]models.Event{},
			registrations: map[uuid.UUID]models.Registration{},
			orders:        map[uuid.UUID]models.PaymentOrder{},
		},
		fail: map[string]error{},
		now:  time.Now,
	}
}

// FailOn makes the named Tx method (e.g. "UpdateRegistration") return err until cleared with nil.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, method)
		return
	}
	s.fail[method] = err
}

// AddUser seeds a user.
func (s *Store) AddUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	s.data.users[u.ID] = u
	return u
}

// AddEvent seeds an event as-is.
func (s *Store) AddEvent(e models.Event) models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	s.data.events[e.ID] = e
	return e
}

// AddRegistration seeds a registration as-is.
func (s *Store) AddRegistration(r models.Registration) models.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.QRToken == "" {
		r.QRToken = uuid.NewString()
	}
	s.data.registrations[r.ID] = r
	return r
}

// Registrations returns a copy of every registration for eventID.
func (s *Store) Registrations(eventID uuid.UUID) []models.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Registration
	for _, r := range s.data.registrations {
		if r.EventID == eventID {
			out = append(out, r)
		}
	}
	return out
}

// Orders returns a copy of every order for registrationID, oldest first.
func (s *Store) Orders(registrationID uuid.UUID) []models.PaymentOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PaymentOrder
	for _, o := range s.data.orders {
		if o.RegistrationID == registrationID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// InTx runs fn with exclusive access; any error restores the pre-transaction state.
func (s *Store) InTx(ctx context.Context, fn func(ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.data.clone()
	if err := fn(&memTx{s: s}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

type memTx struct {
	s *Store
}

func (t *memTx) check(method string) error {
	return t.s.fail[method]
}

func (t *memTx) InsertEvent(_ context.Context, e *models.Event) error {
	if err := t.check("InsertEvent"); err != nil {
		return err
	}
	e.ID = uuid.New()
	e.CreatedAt = t.s.now()
	t.s.data.events[e.ID] = *e
	return nil
}

func (t *memTx) GetEvent(_ context.Context, id uuid.UUID) (*models.Event, error) {
	e, ok := t.s.data.events[id]
	if !ok {
		return nil, apperror.NotFound("event not found")
	}
	t.s.decorate(&e)
	return &e, nil
}

func (t *memTx) LockEvent(_ context.Context, id uuid.UUID) (*models.Event, error) {
	e, ok := t.s.data.events[id]
	if !ok {
		return nil, apperror.NotFound("event not found")
	}
	return &e, nil
}

func (t *memTx) SetEventApproved(_ context.Context, id uuid.UUID) error {
	if err := t.check("SetEventApproved"); err != nil {
		return err
	}
	e, ok := t.s.data.events[id]
	if !ok {
		return apperror.NotFound("event not found")
	}
	e.Approved = true
	t.s.data.events[id] = e
	return nil
}

func (t *memTx) CountRegistrations(_ context.Context, eventID uuid.UUID) (int, error) {
	return countFor(t.s.data, eventID), nil
}

func (t *memTx) RegistrationExists(_ context.Context, userID, eventID uuid.UUID) (bool, error) {
	for _, r := range t.s.data.registrations {
		if r.UserID == userID && r.EventID == eventID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertRegistration(_ context.Context, r *models.Registration) error {
	if err := t.check("InsertRegistration"); err != nil {
		return err
	}
	for _, existing := range t.s.data.registrations {
		if (existing.UserID == r.UserID && existing.EventID == r.EventID) || existing.QRToken == r.QRToken {
			return apperror.Conflict("registration already exists")
		}
	}
	now := t.s.now()
	r.ID = uuid.New()
	r.CreatedAt = now
	r.UpdatedAt = now
	t.s.data.registrations[r.ID] = *r
	return nil
}

func (t *memTx) LockRegistration(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	r, ok := t.s.data.registrations[id]
	if !ok {
		return nil, apperror.NotFound("registration not found")
	}
	return &r, nil
}

func (t *memTx) LockRegistrationByToken(_ context.Context, token string) (*models.Registration, error) {
	for _, r := range t.s.data.registrations {
		if r.QRToken == token {
			r := r
			return &r, nil
		}
	}
	return nil, apperror.NotFound("registration not found")
}

func (t *memTx) UpdateRegistration(_ context.Context, r *models.Registration) error {
	if err := t.check("UpdateRegistration"); err != nil {
		return err
	}
	existing, ok := t.s.data.registrations[r.ID]
	if !ok {
		return apperror.NotFound("registration not found")
	}
	existing.State = r.State
	existing.ScannedAt = r.ScannedAt
	existing.PaymentReference = r.PaymentReference
	existing.UpdatedAt = r.UpdatedAt
	t.s.data.registrations[r.ID] = existing
	return nil
}

func (t *memTx) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := t.s.data.users[id]
	if !ok {
		return nil, apperror.NotFound("user not found")
	}
	return &u, nil
}

func (t *memTx) InsertOrder(_ context.Context, o *models.PaymentOrder) error {
	if err := t.check("InsertOrder"); err != nil {
		return err
	}
	for _, existing := range t.s.data.orders {
		if existing.ProviderOrderID == o.ProviderOrderID {
			return apperror.Conflict("payment order already exists")
		}
	}
	now := t.s.now()
	o.ID = uuid.New()
	o.CreatedAt = now
	o.UpdatedAt = now
	t.s.data.orders[o.ID] = *o
	return nil
}

func (t *memTx) LockOrderByProviderID(_ context.Context, providerOrderID string) (*models.PaymentOrder, error) {
	return findOrder(t.s.data, providerOrderID)
}

func (t *memTx) UpdateOrder(_ context.Context, o *models.PaymentOrder) error {
	if err := t.check("UpdateOrder"); err != nil {
		return err
	}
	if _, ok := t.s.data.orders[o.ID]; !ok {
		return apperror.NotFound("payment order not found")
	}
	t.s.data.orders[o.ID] = *o
	return nil
}

func (t *memTx) FailOpenOrders(_ context.Context, registrationID uuid.UUID, at time.Time) (int, error) {
	n := 0
	for id, o := range t.s.data.orders {
		if o.RegistrationID == registrationID && o.Status == models.PaymentStatusCreated {
			o.Status = models.PaymentStatusFailed
			o.UpdatedAt = at
			t.s.data.orders[id] = o
			n++
		}
	}
	return n, nil
}

// Reads.

func (s *Store) GetEvent(_ context.Context, id uuid.UUID) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data.events[id]
	if !ok {
		return nil, apperror.NotFound("event not found")
	}
	s.decorate(&e)
	return &e, nil
}

func (s *Store) decorate(e *models.Event) {
	e.AttendeesCount = countFor(s.data, e.ID)
	if u, ok := s.data.users[e.HostID]; ok {
		e.HostName = u.FullName
	}
}

func (s *Store) ListPublicEvents(_ context.Context, filter models.EventFilter, now time.Time) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	needle := strings.ToLower(filter.Location)
	var out []models.Event
	for _, e := range s.data.events {
		if !e.Approved || e.Date.Before(now) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(e.PlaceName), needle) &&
			!strings.Contains(strings.ToLower(e.Location), needle) {
			continue
		}
		s.decorate(&e)
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) ListHostedEvents(_ context.Context, hostID uuid.UUID) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Event
	for _, e := range s.data.events {
		if e.HostID == hostID {
			s.decorate(&e)
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListPendingEvents(_ context.Context) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Event
	for _, e := range s.data.events {
		if !e.Approved {
			s.decorate(&e)
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetRegistration(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data.registrations[id]
	if !ok {
		return nil, apperror.NotFound("registration not found")
	}
	return &r, nil
}

func (s *Store) ListUserRegistrations(_ context.Context, userID uuid.UUID) ([]models.MyRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MyRegistration
	for _, r := range s.data.registrations {
		if r.UserID != userID {
			continue
		}
		e := s.data.events[r.EventID]
		out = append(out, models.MyRegistration{
			RegistrationView: r.View(),
			Title:            e.Title,
			PlaceName:        e.PlaceName,
			Location:         e.Location,
			Date:             e.Date,
			Category:         e.Category,
			QRImageKey:       r.QRImageKey,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) ListAttendees(_ context.Context, eventID uuid.UUID) ([]models.Attendee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Attendee
	for _, r := range s.data.registrations {
		if r.EventID != eventID {
			continue
		}
		u := s.data.users[r.UserID]
		a := models.Attendee{
			RegistrationID: r.ID,
			UserID:         r.UserID,
			FullName:       u.FullName,
			Email:          u.Email,
			State:          r.State,
			ScannedAt:      r.ScannedAt,
			CreatedAt:      r.CreatedAt,
		}
		a.Project()
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SetQRImageKey(_ context.Context, registrationID uuid.UUID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data.registrations[registrationID]
	if !ok {
		return apperror.NotFound("registration not found")
	}
	r.QRImageKey = &key
	s.data.registrations[registrationID] = r
	return nil
}

func (s *Store) GetOrderByProviderID(_ context.Context, providerOrderID string) (*models.PaymentOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return findOrder(s.data, providerOrderID)
}

func (s *Store) IncrementVerifyAttempts(_ context.Context, orderID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.data.orders[orderID]
	if ok && o.Status != models.PaymentStatusPaid {
		o.VerifyAttempts++
		o.UpdatedAt = s.now()
		s.data.orders[orderID] = o
	}
	return nil
}

func (s *Store) EventSummary(_ context.Context, eventID uuid.UUID) (*models.EventSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data.events[eventID]
	if !ok {
		return nil, apperror.NotFound("event not found")
	}
	sum := &models.EventSummary{EventID: e.ID, Title: e.Title, Capacity: e.Capacity}
	for _, r := range s.data.registrations {
		if r.EventID != eventID {
			continue
		}
		sum.Registrations++
		switch r.State {
		case models.StatePendingPayment:
			sum.PendingPayment++
		case models.StatePaidUnapproved:
			sum.PaidUnapproved++
		case models.StateApproved:
			sum.Approved++
		case models.StateScanned:
			sum.Scanned++
		}
	}
	for _, o := range s.data.orders {
		if o.EventID == eventID && o.Status == models.PaymentStatusPaid {
			sum.RevenueMinor += o.AmountMinor
		}
	}
	sum.Finalize()
	return sum, nil
}

func countFor(d *state, eventID uuid.UUID) int {
	n := 0
	for _, r := range d.registrations {
		if r.EventID == eventID {
			n++
		}
	}
	return n
}

func findOrder(d *state, providerOrderID string) (*models.PaymentOrder, error) {
	for _, o := range d.orders {
		if o.ProviderOrderID == providerOrderID {
			o := o
			return &o, nil
		}
	}
	return nil, apperror.NotFound("payment order not found")
}
