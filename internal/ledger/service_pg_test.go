package ledger_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherpass/backend/internal/attendance"
	"github.com/gatherpass/backend/internal/ledger"
	"github.com/gatherpass/backend/internal/models"
	"github.com/gatherpass/backend/internal/registrations"
	"github.com/gatherpass/backend/pkg/apperror"
	"github.com/gatherpass/backend/pkg/database"
)

// These run the services against Postgres so row locks, not the in-memory
// store's mutex, are what keeps capacity and single admission correct.

func openPg(t *testing.T) (*ledger.PgStore, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.Migrate(ctx, pool, nil))
	return ledger.NewPgStore(pool, nil), pool
}

func addUser(t *testing.T, pool *pgxpool.Pool, name string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(context.Background(),
		`INSERT INTO users (email, password_hash, full_name) VALUES ($1, 'x', $2) RETURNING id`,
		uuid.NewString()+"@example.com", name).Scan(&id)
	require.NoError(t, err)
	return id
}

func addFreeEvent(t *testing.T, s *ledger.PgStore, host uuid.UUID, capacity int) *models.Event {
	t.Helper()
	e := &models.Event{
		HostID:      host,
		Title:       "Locking",
		Description: "d",
		Category:    models.CategoryFree,
		Location:    "Pune",
		Date:        time.Now().Add(72 * time.Hour),
		Capacity:    capacity,
		Approved:    true,
	}
	ctx := context.Background()
	require.NoError(t, s.InTx(ctx, func(tx ledger.Tx) error { return tx.InsertEvent(ctx, e) }))
	return e
}

type outcomes struct {
	mu     sync.Mutex
	ok     int
	byKind map[apperror.Kind]int
	other  []error
}

func (o *outcomes) record(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err == nil {
		o.ok++
		return
	}
	var ae *apperror.Error
	if errors.As(err, &ae) {
		o.byKind[ae.Kind]++
		return
	}
	o.other = append(o.other, err)
}

func race(n int, fn func(i int) error) *outcomes {
	res := &outcomes{byKind: map[apperror.Kind]int{}}
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			res.record(fn(i))
		}(i)
	}
	close(start)
	wg.Wait()
	return res
}

func countRows(t *testing.T, pool *pgxpool.Pool, eventID uuid.UUID) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1`, eventID).Scan(&n))
	return n
}

func TestPgJoinLastSeatGoesToOneUser(t *testing.T) {
	s, pool := openPg(t)
	ev := addFreeEvent(t, s, addUser(t, pool, "Host"), 1)
	svc := registrations.NewService(s, nil, nil, nil)

	const joiners = 12
	users := make([]uuid.UUID, joiners)
	for i := range users {
		users[i] = addUser(t, pool, "Guest")
	}
	res := race(joiners, func(i int) error {
		_, err := svc.Join(context.Background(), users[i], ev.ID)
		return err
	})

	assert.Empty(t, res.other)
	assert.Equal(t, 1, res.ok)
	assert.Equal(t, joiners-1, res.byKind[apperror.KindCapacityExceeded])
	assert.Equal(t, 1, countRows(t, pool, ev.ID))

	summary, err := s.EventSummary(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Registrations)
	assert.Equal(t, 0, summary.CapacityRemaining)
}

func TestPgJoinSameUserRegistersOnce(t *testing.T) {
	s, pool := openPg(t)
	ev := addFreeEvent(t, s, addUser(t, pool, "Host"), 50)
	svc := registrations.NewService(s, nil, nil, nil)
	user := addUser(t, pool, "Guest")

	const attempts = 8
	res := race(attempts, func(int) error {
		_, err := svc.Join(context.Background(), user, ev.ID)
		return err
	})

	assert.Empty(t, res.other)
	assert.Equal(t, 1, res.ok)
	assert.Equal(t, attempts-1, res.byKind[apperror.KindConflict])
	assert.Equal(t, 1, countRows(t, pool, ev.ID))
}

func TestPgScanAdmitsOnce(t *testing.T) {
	s, pool := openPg(t)
	host := addUser(t, pool, "Host")
	ev := addFreeEvent(t, s, host, 5)
	reg, err := registrations.NewService(s, nil, nil, nil).Join(context.Background(), addUser(t, pool, "Guest"), ev.ID)
	require.NoError(t, err)
	require.Equal(t, models.StateApproved, reg.State)

	svc := attendance.NewService(s, nil, nil)
	const scanners = 10
	res := race(scanners, func(int) error {
		_, err := svc.Scan(context.Background(), host, reg.QRToken)
		return err
	})

	assert.Empty(t, res.other)
	assert.Equal(t, 1, res.ok)
	assert.Equal(t, scanners-1, res.byKind[apperror.KindConflict])

	got, err := s.GetRegistration(context.Background(), reg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateScanned, got.State)
	require.NotNil(t, got.ScannedAt)
}
