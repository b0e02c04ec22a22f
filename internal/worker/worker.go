// Package worker consumes background jobs: rendering ticket QR codes to S3.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatherpass/backend/internal/models"
	"github.com/gatherpass/backend/pkg/qrcode"
	"github.com/gatherpass/backend/pkg/queue"
	"github.com/gatherpass/backend/pkg/storage"
)

// Registrations reads and annotates registrations.
type Registrations interface {
	GetRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	SetQRImageKey(ctx context.Context, registrationID uuid.UUID, key string) error
}

// Objects stores rendered images.
type Objects interface {
	PutQR(ctx context.Context, key string, png []byte) error
	DeleteQR(ctx context.Context, key string) error
}

// Jobs is the queue the processor drains.
type Jobs interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// QRProcessor renders QR PNGs for active registrations and stores them in S3.
type QRProcessor struct {
	regs    Registrations
	objects Objects
	jobs    Jobs
	size    int
	backoff time.Duration
	logger  *zap.Logger
}

// NewQRProcessor creates a QR render processor.
func NewQRProcessor(regs Registrations, objects Objects, jobs Jobs, logger *zap.Logger) *QRProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QRProcessor{
		regs:    regs,
		objects: objects,
		jobs:    jobs,
		size:    qrcode.DefaultSize,
		backoff: queue.RetryBackoff,
		logger:  logger,
	}
}

// Process executes one QR render job. Inactive or already-rendered registrations are skipped.
func (p *QRProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeQRRender {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.QRRenderPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	reg, err := p.regs.GetRegistration(ctx, payload.RegistrationID)
	if err != nil {
		return fmt.Errorf("load registration %s: %w", payload.RegistrationID, err)
	}
	if !reg.Active() {
		p.logger.Info("skipping qr for inactive registration", zap.String("registration_id", reg.ID.String()))
		return nil
	}
	if reg.QRImageKey != nil {
		return nil
	}

	png, err := qrcode.PNG(reg.QRToken, p.size)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	key := storage.QRKey(reg.ID)
	if err := p.objects.PutQR(ctx, key, png); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	if err := p.regs.SetQRImageKey(ctx, reg.ID, key); err != nil {
		if delErr := p.objects.DeleteQR(ctx, key); delErr != nil {
			p.logger.Warn("cleanup qr object failed", zap.String("s3_key", key), zap.Error(delErr))
		}
		return fmt.Errorf("update db: %w", err)
	}

	p.logger.Info("qr image stored", zap.String("registration_id", reg.ID.String()), zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *QRProcessor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			p.logger.Info("qr worker stopping")
			return
		}

		job, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.jobs.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *QRProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
