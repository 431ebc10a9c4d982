// Package engine executes claimed jobs: it stages input blobs to local
// scratch space, runs the transform and finalizes the job row. It is
// the only writer of terminal job states on the success path.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"fileforge/internal/blob"
	"fileforge/internal/models"
	"fileforge/internal/queue"
	"fileforge/internal/storage"
	"fileforge/internal/tools"
	"fileforge/internal/transform"
)

// JobStore is the slice of the jobs repository the engine needs.
type JobStore interface {
	Claim(ctx context.Context, id uuid.UUID, leaseUntil time.Time) (*models.Job, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error
	Complete(ctx context.Context, id uuid.UUID, output *models.File) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
}

// FileStore resolves job inputs under the owner visibility rules.
type FileStore interface {
	GetManyForOwner(ctx context.Context, ids []uuid.UUID, owner models.Owner, now time.Time) ([]*models.File, error)
}

// Config carries the engine's operating limits.
type Config struct {
	ScratchDir       string
	FileTTL          time.Duration
	ProcessingLease  time.Duration
	TransformTimeout time.Duration
}

// Engine turns work items into finished jobs.
type Engine struct {
	log   *logrus.Logger
	jobs  JobStore
	files FileStore
	blobs blob.Store
	exec  transform.Executor
	cfg   Config
}

// New wires an engine. The executor is injected so tests can run
// without the external toolchain.
func New(log *logrus.Logger, jobs JobStore, files FileStore, blobs blob.Store, exec transform.Executor, cfg Config) *Engine {
	return &Engine{log: log, jobs: jobs, files: files, blobs: blobs, exec: exec, cfg: cfg}
}

// Handle processes one work item end to end. A nil return acknowledges
// the message. Duplicate and stale deliveries are acknowledged without
// side effects; only errors where redelivery could help are returned.
func (e *Engine) Handle(ctx context.Context, msg queue.Message) error {
	log := e.log.WithField("job_id", msg.JobID)

	job, err := e.jobs.Claim(ctx, msg.JobID, time.Now().Add(e.cfg.ProcessingLease))
	if errors.Is(err, storage.ErrNotFound) {
		log.Warn("work item references unknown job, dropping")
		return nil
	}
	if errors.Is(err, storage.ErrConflict) {
		log.WithError(err).Info("job already claimed or finished, dropping duplicate")
		return nil
	}
	if err != nil {
		return fmt.Errorf("claiming job: %w", err)
	}

	log = log.WithField("tool", job.ToolName)
	log.Info("job claimed")
	return e.process(ctx, log, job)
}

func (e *Engine) process(ctx context.Context, log *logrus.Entry, job *models.Job) error {
	params, err := tools.Decode(tools.Name(job.ToolName), job.Params)
	if err != nil {
		return e.fail(ctx, log, job, err.Error())
	}

	workDir, err := os.MkdirTemp(e.cfg.ScratchDir, "job-"+job.ID.String()+"-")
	if err != nil {
		return fmt.Errorf("allocating scratch space: %w", err)
	}
	defer os.RemoveAll(workDir)

	inputs, err := e.stage(ctx, job, workDir)
	if err != nil {
		// A vanished input cannot heal on retry; anything else might.
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, blob.ErrNotFound) {
			return e.fail(ctx, log, job, err.Error())
		}
		return fmt.Errorf("staging inputs: %w", err)
	}

	res, err := e.execute(ctx, job, params, inputs, workDir)
	if err != nil {
		return e.fail(ctx, log, job, truncate(err.Error(), maxErrorMessage))
	}

	output, err := e.publish(ctx, job, res)
	if err != nil {
		return e.fail(ctx, log, job, "storing output failed")
	}

	err = e.finalize(ctx, func(ctx context.Context) error {
		return e.jobs.Complete(ctx, job.ID, output)
	})
	if errors.Is(err, storage.ErrConflict) {
		// Cancelled (or reaped) while the transform ran. The cancel wins
		// and the uploaded result is discarded.
		if derr := e.blobs.Delete(ctx, output.StoragePath); derr != nil {
			log.WithError(derr).Warn("orphaned output blob not deleted")
		}
		log.Info("job no longer processing at finalization, result discarded")
		return nil
	}
	if err != nil {
		return fmt.Errorf("finalizing job: %w", err)
	}

	log.WithField("output_file_id", output.ID).Info("job completed")
	return nil
}

// stage resolves the job's inputs and copies each blob to scratch. The
// staged basename is the file id, which transforms derive output names
// from.
func (e *Engine) stage(ctx context.Context, job *models.Job, workDir string) ([]string, error) {
	files, err := e.files.GetManyForOwner(ctx, job.InputFileIDs, job.Owner(), time.Now())
	if err != nil {
		return nil, err
	}

	inDir := filepath.Join(workDir, "in")
	if err := os.MkdirAll(inDir, 0o755); err != nil {
		return nil, err
	}

	paths := make([]string, len(files))
	for i, f := range files {
		path := filepath.Join(inDir, f.ID.String()+filepath.Ext(f.StoredFilename))
		if err := e.download(ctx, f.StoragePath, path); err != nil {
			return nil, fmt.Errorf("staging file %s: %w", f.ID, err)
		}
		paths[i] = path
	}
	return paths, nil
}

func (e *Engine) download(ctx context.Context, key, dst string) error {
	src, err := e.blobs.Open(ctx, key)
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// execute runs the transform under the wall-clock budget. A panic in a
// transform is converted to an error so one bad job cannot take the
// worker down.
func (e *Engine) execute(ctx context.Context, job *models.Job, params tools.Params, inputs []string, workDir string) (res transform.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transform panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.TransformTimeout)
	defer cancel()

	return e.exec.Execute(ctx, transform.Request{
		Tool:    tools.Name(job.ToolName),
		Inputs:  inputs,
		Params:  params,
		WorkDir: workDir,
		Progress: func(pct int) {
			if uerr := e.jobs.UpdateProgress(ctx, job.ID, pct); uerr != nil {
				e.log.WithField("job_id", job.ID).WithError(uerr).Debug("progress checkpoint not recorded")
			}
		},
	})
}

// publish uploads the artifact and builds the output file row. The row
// is deliberately not inserted here: Complete writes it in the same
// transaction as the status flip so a lost race leaves nothing behind.
func (e *Engine) publish(ctx context.Context, job *models.Job, res transform.Result) (*models.File, error) {
	src, err := os.Open(res.Path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	key := id.String() + filepath.Ext(res.Filename)

	sum := sha256.New()
	if err := e.blobs.Put(ctx, key, io.TeeReader(src, sum), info.Size(), res.ContentType); err != nil {
		return nil, err
	}

	f := &models.File{
		ID:               id,
		OriginalFilename: res.Filename,
		StoredFilename:   key,
		StoragePath:      key,
		FileSize:         info.Size(),
		FileType:         models.FileTypeFromMime(res.ContentType),
		MimeType:         res.ContentType,
		Checksum:         hex.EncodeToString(sum.Sum(nil)),
		StorageBackend:   e.blobs.Backend(),
		ExpiresAt:        time.Now().Add(e.cfg.FileTTL),
	}
	f.SetOwner(job.Owner())
	return f, nil
}

// fail records a terminal failure. A conflict means the job reached a
// terminal state through another path already; same outcome, so the
// message is acknowledged.
func (e *Engine) fail(ctx context.Context, log *logrus.Entry, job *models.Job, message string) error {
	err := e.finalize(ctx, func(ctx context.Context) error {
		return e.jobs.Fail(ctx, job.ID, message)
	})
	if errors.Is(err, storage.ErrConflict) {
		log.Info("job already terminal, failure not recorded")
		return nil
	}
	if err != nil {
		return fmt.Errorf("recording failure: %w", err)
	}
	log.WithField("error_message", message).Info("job failed")
	return nil
}

// finalize runs a terminal status write with a short retry budget so a
// transient store error cannot strand a finished job in processing.
func (e *Engine) finalize(ctx context.Context, fn func(context.Context) error) error {
	b := retry.WithMaxRetries(3, retry.NewFibonacci(200*time.Millisecond))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil || errors.Is(err, storage.ErrConflict) {
			return err
		}
		return retry.RetryableError(err)
	})
}

const maxErrorMessage = 500

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "") + "..."
}
