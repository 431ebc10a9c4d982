// Package sweeper is the background janitor: it reclaims expired file
// blobs, fails jobs whose processing lease ran out and re-enqueues
// pending jobs whose work item got lost.
package sweeper

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"fileforge/internal/blob"
	"fileforge/internal/models"
	"fileforge/internal/queue"
)

// FileStore is the slice of the files repository the sweeper needs.
type FileStore interface {
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.File, error)
	MarkSwept(ctx context.Context, id uuid.UUID) error
}

// JobStore is the slice of the jobs repository the sweeper needs.
type JobStore interface {
	FailExpiredLeases(ctx context.Context, now time.Time, message string) ([]uuid.UUID, error)
	PendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

// Config carries the sweeper's cadence and thresholds.
type Config struct {
	Interval time.Duration
	// RequeueAge is how long a job may sit pending before its work item
	// is assumed lost and enqueued again.
	RequeueAge time.Duration
}

const sweepBatch = 500

const leaseExpiredMessage = "processing lease expired"

// Sweeper runs periodic maintenance passes.
type Sweeper struct {
	log      *logrus.Logger
	files    FileStore
	jobs     JobStore
	blobs    blob.Store
	producer queue.Producer
	cfg      Config
}

// New wires a sweeper.
func New(log *logrus.Logger, files FileStore, jobs JobStore, blobs blob.Store, producer queue.Producer, cfg Config) *Sweeper {
	return &Sweeper{log: log, files: files, jobs: jobs, blobs: blobs, producer: producer, cfg: cfg}
}

// Run sweeps on a fixed period until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.log.WithField("interval", s.cfg.Interval.String()).Info("sweeper starting")
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.log.WithError(err).Error("sweep pass incomplete")
			}
		}
	}
}

// Sweep runs all three passes once. Each pass keeps going past
// individual failures and the errors are aggregated.
func (s *Sweeper) Sweep(ctx context.Context) error {
	now := time.Now()
	return multierr.Combine(
		s.sweepExpiredFiles(ctx, now),
		s.reapExpiredLeases(ctx, now),
		s.requeueStalePending(ctx, now),
	)
}

// sweepExpiredFiles deletes blobs of expired files and tombstones the
// rows. Visibility does not depend on this pass: expired files already
// read as missing everywhere, so this is purely space reclamation.
func (s *Sweeper) sweepExpiredFiles(ctx context.Context, now time.Time) error {
	var errs error
	swept := 0

	for {
		files, err := s.files.ListExpired(ctx, now, sweepBatch)
		if err != nil {
			return multierr.Append(errs, err)
		}
		if len(files) == 0 {
			break
		}

		progressed := false
		for _, f := range files {
			// Keep the row unswept if the blob could not be removed, so the
			// next pass retries. A missing blob is not an error.
			if err := s.blobs.Delete(ctx, f.StoragePath); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			if err := s.files.MarkSwept(ctx, f.ID); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			swept++
			progressed = true
		}
		if !progressed || len(files) < sweepBatch {
			break
		}
	}

	if swept > 0 {
		s.log.WithField("count", swept).Info("expired files swept")
	}
	return errs
}

func (s *Sweeper) reapExpiredLeases(ctx context.Context, now time.Time) error {
	ids, err := s.jobs.FailExpiredLeases(ctx, now, leaseExpiredMessage)
	if err != nil {
		return err
	}
	for _, id := range ids {
		s.log.WithField("job_id", id).Warn("job failed by lease reaper")
	}
	return nil
}

func (s *Sweeper) requeueStalePending(ctx context.Context, now time.Time) error {
	ids, err := s.jobs.PendingOlderThan(ctx, now.Add(-s.cfg.RequeueAge), sweepBatch)
	if err != nil {
		return err
	}

	var errs error
	for _, id := range ids {
		// Duplicate delivery is safe: the processing claim is a CAS.
		if err := s.producer.Enqueue(ctx, queue.Message{JobID: id}); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		s.log.WithField("job_id", id).Warn("stale pending job re-enqueued")
	}
	return errs
}
