package worker

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherpass/backend/internal/ledger/ledgertest"
	"github.com/gatherpass/backend/internal/models"
	"github.com/gatherpass/backend/pkg/queue"
	"github.com/gatherpass/backend/pkg/storage"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

type memObjects struct {
	mu       sync.Mutex
	objects  map[string][]byte
	failPuts int
	deleted  []string
}

func newMemObjects() *memObjects { return &memObjects{objects: map[string][]byte{}} }

func (o *memObjects) PutQR(_ context.Context, key string, png []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failPuts > 0 {
		o.failPuts--
		return errors.New("s3 throttled")
	}
	o.objects[key] = png
	return nil
}

func (o *memObjects) DeleteQR(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.objects, key)
	o.deleted = append(o.deleted, key)
	return nil
}

func (o *memObjects) get(key string) []byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.objects[key]
}

type chanJobs struct {
	ch      chan *queue.Job
	mu      sync.Mutex
	retried int
}

func (j *chanJobs) Dequeue(ctx context.Context) (*queue.Job, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case job := <-j.ch:
		return job, nil
	}
}

func (j *chanJobs) Retry(_ context.Context, job *queue.Job) error {
	j.mu.Lock()
	j.retried++
	j.mu.Unlock()
	job.Attempt++
	j.ch <- job
	return nil
}

type failingRegs struct {
	*ledgertest.Store
}

func (failingRegs) SetQRImageKey(context.Context, uuid.UUID, string) error {
	return errors.New("db gone")
}

func renderJob(t *testing.T, id uuid.UUID) *queue.Job {
	t.Helper()
	job, err := queue.NewJob(queue.JobTypeQRRender, queue.QRRenderPayload{RegistrationID: id})
	require.NoError(t, err)
	return job
}

func TestProcessStoresQRForActiveRegistration(t *testing.T) {
	store := ledgertest.New()
	reg := store.AddRegistration(models.Registration{UserID: uuid.New(), EventID: uuid.New(), State: models.StateApproved})
	objects := newMemObjects()
	p := NewQRProcessor(store, objects, nil, nil)
	ctx := context.Background()

	require.NoError(t, p.Process(ctx, renderJob(t, reg.ID)))
	key := storage.QRKey(reg.ID)
	assert.True(t, bytes.HasPrefix(objects.get(key), pngMagic))

	got, err := store.GetRegistration(ctx, reg.ID)
	require.NoError(t, err)
	require.NotNil(t, got.QRImageKey)
	assert.Equal(t, key, *got.QRImageKey)

	// second run is a no-op
	objects.objects = map[string][]byte{}
	require.NoError(t, p.Process(ctx, renderJob(t, reg.ID)))
	assert.Nil(t, objects.get(key))
}

func TestProcessSkipsInactiveRegistration(t *testing.T) {
	store := ledgertest.New()
	reg := store.AddRegistration(models.Registration{UserID: uuid.New(), EventID: uuid.New(), State: models.StatePendingPayment})
	objects := newMemObjects()
	p := NewQRProcessor(store, objects, nil, nil)

	require.NoError(t, p.Process(context.Background(), renderJob(t, reg.ID)))
	assert.Empty(t, objects.objects)
}

func TestProcessErrors(t *testing.T) {
	store := ledgertest.New()
	p := NewQRProcessor(store, newMemObjects(), nil, nil)
	ctx := context.Background()

	assert.Error(t, p.Process(ctx, &queue.Job{Type: "email"}))
	assert.Error(t, p.Process(ctx, &queue.Job{Type: queue.JobTypeQRRender, Payload: []byte("{")}))
	assert.Error(t, p.Process(ctx, renderJob(t, uuid.New())))
}

func TestProcessRemovesObjectWhenDBUpdateFails(t *testing.T) {
	store := ledgertest.New()
	reg := store.AddRegistration(models.Registration{UserID: uuid.New(), EventID: uuid.New(), State: models.StateApproved})
	objects := newMemObjects()
	p := NewQRProcessor(failingRegs{store}, objects, nil, nil)

	assert.Error(t, p.Process(context.Background(), renderJob(t, reg.ID)))
	assert.Equal(t, []string{storage.QRKey(reg.ID)}, objects.deleted)
	assert.Empty(t, objects.objects)
}

func TestRunRetriesFailedJobs(t *testing.T) {
	store := ledgertest.New()
	reg := store.AddRegistration(models.Registration{UserID: uuid.New(), EventID: uuid.New(), State: models.StateApproved})
	objects := newMemObjects()
	objects.failPuts = 1
	jobs := &chanJobs{ch: make(chan *queue.Job, 4)}
	p := NewQRProcessor(store, objects, jobs, nil)
	p.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	jobs.ch <- renderJob(t, reg.ID)

	require.Eventually(t, func() bool { return objects.get(storage.QRKey(reg.ID)) != nil }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	jobs.mu.Lock()
	defer jobs.mu.Unlock()
	assert.Equal(t, 1, jobs.retried)
}
