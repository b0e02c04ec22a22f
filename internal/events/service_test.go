package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherpass/backend/internal/ledger/ledgertest"
	"github.com/gatherpass/backend/internal/models"
	"github.com/gatherpass/backend/pkg/apperror"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newService(store *ledgertest.Store) *Service {
	s := NewService(store, nil)
	s.now = func() time.Time { return now }
	return s
}

func TestCreateForcesHostAndUnapproved(t *testing.T) {
	store := ledgertest.New()
	svc := newService(store)
	host := uuid.New()

	e, err := svc.Create(context.Background(), host, CreateInput{
		Title: "Gig", Description: "live", Category: models.CategoryFree,
		Location: "Goa", Date: now.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, host, e.HostID)
	assert.False(t, e.Approved)
	assert.Equal(t, models.DefaultCapacity, e.Capacity)

	pending, err := svc.ListPublic(context.Background(), models.EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCreateValidation(t *testing.T) {
	svc := newService(ledgertest.New())
	price := int64(1000)
	cases := map[string]CreateInput{
		"past date":      {Title: "a", Description: "b", Category: models.CategoryFree, Location: "x", Date: now.Add(-time.Hour)},
		"paid no price":  {Title: "a", Description: "b", Category: models.CategoryPaid, Location: "x", Date: now.Add(time.Hour)},
		"free priced":    {Title: "a", Description: "b", Category: models.CategoryFree, Location: "x", Date: now.Add(time.Hour), PriceMinor: &price},
		"negative seats": {Title: "a", Description: "b", Category: models.CategoryFree, Location: "x", Date: now.Add(time.Hour), Capacity: -1},
		"no title":       {Description: "b", Category: models.CategoryFree, Location: "x", Date: now.Add(time.Hour)},
	}
	for name, in := range cases {
		_, err := svc.Create(context.Background(), uuid.New(), in)
		assert.True(t, errors.Is(err, apperror.ErrValidation), name)
	}
}

func TestListPublicFiltersAndOrders(t *testing.T) {
	store := ledgertest.New()
	svc := newService(store)
	late := store.AddEvent(models.Event{Title: "late", Location: "Mumbai", PlaceName: "NSCI Dome", Approved: true, Date: now.Add(72 * time.Hour), Capacity: 5})
	soon := store.AddEvent(models.Event{Title: "soon", Location: "https://maps.example/mumbai", Approved: true, Date: now.Add(time.Hour), Capacity: 5})
	store.AddEvent(models.Event{Title: "past", Location: "Mumbai", Approved: true, Date: now.Add(-time.Hour), Capacity: 5})
	store.AddEvent(models.Event{Title: "pending", Location: "Mumbai", Approved: false, Date: now.Add(time.Hour), Capacity: 5})
	store.AddEvent(models.Event{Title: "elsewhere", Location: "Delhi", Approved: true, Date: now.Add(time.Hour), Capacity: 5})

	list, err := svc.ListPublic(context.Background(), models.EventFilter{Location: "MUMBAI"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, soon.ID, list[0].ID)
	assert.Equal(t, late.ID, list[1].ID)

	list, err = svc.ListPublic(context.Background(), models.EventFilter{Location: "dome"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, late.ID, list[0].ID)
}

func TestGetHidesUnapprovedFromStrangers(t *testing.T) {
	store := ledgertest.New()
	svc := newService(store)
	host := uuid.New()
	e := store.AddEvent(models.Event{HostID: host, Title: "draft", Date: now.Add(time.Hour), Capacity: 1})

	_, err := svc.Get(context.Background(), models.Actor{ID: uuid.New(), Role: models.RoleUser}, e.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	got, err := svc.Get(context.Background(), models.Actor{ID: host, Role: models.RoleUser}, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "draft", got.Title)

	_, err = svc.Get(context.Background(), models.Actor{ID: uuid.New(), Role: models.RoleAdmin}, e.ID)
	assert.NoError(t, err)
}

func TestAttendeesHostOnly(t *testing.T) {
	store := ledgertest.New()
	svc := newService(store)
	host := uuid.New()
	guest := store.AddUser(models.User{FullName: "Guest", Email: "g@example.com"})
	e := store.AddEvent(models.Event{HostID: host, Title: "party", Approved: true, Date: now.Add(time.Hour), Capacity: 3})
	store.AddRegistration(models.Registration{UserID: guest.ID, EventID: e.ID, State: models.StatePaidUnapproved})

	_, err := svc.Attendees(context.Background(), uuid.New(), e.ID)
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	list, err := svc.Attendees(context.Background(), host, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "party", list.Title)
	require.Len(t, list.Attendees, 1)
	a := list.Attendees[0]
	assert.Equal(t, "Guest", a.FullName)
	assert.True(t, a.IsPaid)
	assert.False(t, a.IsApproved)
	assert.False(t, a.IsScanned)
}

func TestListHostedCountsAttendees(t *testing.T) {
	store := ledgertest.New()
	svc := newService(store)
	host := uuid.New()
	e := store.AddEvent(models.Event{HostID: host, Title: "mine", Date: now.Add(time.Hour), Capacity: 3})
	store.AddRegistration(models.Registration{UserID: uuid.New(), EventID: e.ID, State: models.StateApproved})
	store.AddEvent(models.Event{HostID: uuid.New(), Title: "theirs", Date: now.Add(time.Hour), Capacity: 3})

	list, err := svc.ListHosted(context.Background(), host)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].AttendeesCount)
}
