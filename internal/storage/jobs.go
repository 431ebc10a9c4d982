package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fileforge/internal/dbx"
	"fileforge/internal/models"
)

// Jobs is the PostgreSQL repository for job rows. It holds the *sql.DB
// handle directly because finalization spans files and jobs in one
// transaction.
type Jobs struct {
	db *sql.DB
}

// NewJobs constructs a jobs repository on the given connection pool.
func NewJobs(db *sql.DB) *Jobs {
	return &Jobs{db: db}
}

const jobColumns = `id, tool_name, status, user_id, guest_token, input_file_ids,
	params, input_files_count, output_file_id, progress, error_message,
	processing_started_at, processing_completed_at, processing_time_seconds,
	lease_expires_at, created_at, updated_at, expires_at`

func scanJob(s rowScanner) (*models.Job, error) {
	var (
		j        models.Job
		idsJSON  []byte
		paramsJS []byte
	)
	err := s.Scan(&j.ID, &j.ToolName, &j.Status, &j.UserID, &j.GuestToken,
		&idsJSON, &paramsJS, &j.InputFilesCount, &j.OutputFileID, &j.Progress,
		&j.ErrorMessage, &j.ProcessingStartedAt, &j.ProcessingCompletedAt,
		&j.ProcessingTimeSeconds, &j.LeaseExpiresAt, &j.CreatedAt, &j.UpdatedAt,
		&j.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if len(idsJSON) > 0 {
		if err := json.Unmarshal(idsJSON, &j.InputFileIDs); err != nil {
			return nil, fmt.Errorf("input_file_ids decode error: %w", err)
		}
	}
	j.Params = paramsJS
	return &j, nil
}

// Create inserts a new job row in its initial pending state.
func (r *Jobs) Create(ctx context.Context, j *models.Job) error {
	idsJSON, err := json.Marshal(j.InputFileIDs)
	if err != nil {
		return fmt.Errorf("input_file_ids encode error: %w", err)
	}
	params := j.Params
	if len(params) == 0 {
		params = []byte("{}")
	}

	query := `
		INSERT INTO jobs (id, tool_name, status, user_id, guest_token,
			input_file_ids, params, input_files_count, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, $9)
		RETURNING created_at, updated_at`

	err = r.db.QueryRowContext(ctx, query,
		j.ID, j.ToolName, j.Status, j.UserID, j.GuestToken,
		string(idsJSON), string(params), j.InputFilesCount, j.ExpiresAt,
	).Scan(&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByID returns the raw row regardless of owner. Internal use only.
func (r *Jobs) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	return scanJob(r.db.QueryRowContext(ctx, query, id))
}

// GetForOwner returns the job only when it belongs to owner. A foreign job
// reads exactly like a missing one.
func (r *Jobs) GetForOwner(ctx context.Context, id uuid.UUID, owner models.Owner) (*models.Job, error) {
	cond, arg := ownerCond(owner, 2)
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1 AND ` + cond
	return scanJob(r.db.QueryRowContext(ctx, query, id, arg))
}

// ListForOwner returns one page of the owner's jobs, newest first, plus the
// total count for has_more computation.
func (r *Jobs) ListForOwner(ctx context.Context, owner models.Owner, limit, offset int) ([]*models.Job, int, error) {
	cond, arg := ownerCond(owner, 1)

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE `+cond, arg).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	query := `SELECT ` + jobColumns + ` FROM jobs WHERE ` + cond + `
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, arg, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	return out, total, nil
}

// CountByStatus returns the owner's job counts grouped by status.
func (r *Jobs) CountByStatus(ctx context.Context, owner models.Owner) (map[models.Status]int, error) {
	cond, arg := ownerCond(owner, 1)
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM jobs WHERE `+cond+` GROUP BY status`, arg)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make(map[models.Status]int)
	for rows.Next() {
		var s models.Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out[s] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// Claim atomically moves a pending job to processing, stamping the start
// time, the first progress checkpoint and the lease deadline. Exactly one
// worker can win the claim; a duplicate delivery gets ErrConflict, an
// unknown id gets ErrNotFound.
func (r *Jobs) Claim(ctx context.Context, id uuid.UUID, leaseUntil time.Time) (*models.Job, error) {
	query := `
		UPDATE jobs
		SET status = $2,
		    progress = 10,
		    processing_started_at = now(),
		    lease_expires_at = $3,
		    updated_at = now()
		WHERE id = $1 AND status = $4
		RETURNING ` + jobColumns

	j, err := scanJob(r.db.QueryRowContext(ctx, query,
		id, models.StatusProcessing, leaseUntil, models.StatusPending))
	if err == nil {
		return j, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// Lost the claim: distinguish "no such job" from "already taken/terminal"
	// so the caller can log the right thing. Both are safe no-ops.
	var status models.Status
	probeErr := r.db.QueryRowContext(ctx,
		`SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(probeErr, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if probeErr != nil {
		return nil, fmt.Errorf("db error: %w", probeErr)
	}
	return nil, fmt.Errorf("job %s is %s: %w", id, status, ErrConflict)
}

// UpdateProgress applies a progress checkpoint. The guard keeps progress
// monotonic and only touches in-flight jobs; a stale or out-of-order update
// silently affects nothing.
func (r *Jobs) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET progress = $2, updated_at = now()
		WHERE id = $1 AND status = $3 AND progress <= $2`,
		id, progress, models.StatusProcessing)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Complete finalizes a successful job: inserts the output file row and moves
// the job to completed in one transaction. If the job is no longer
// processing (cancelled meanwhile, or a duplicate finalization) the whole
// transaction rolls back and ErrConflict is returned, so the output file row
// never outlives a non-completed job.
func (r *Jobs) Complete(ctx context.Context, id uuid.UUID, output *models.File) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := insertFile(ctx, tx, output); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE jobs
			SET status = $2,
			    progress = 100,
			    output_file_id = $3,
			    processing_completed_at = now(),
			    processing_time_seconds = EXTRACT(EPOCH FROM (now() - processing_started_at)),
			    lease_expires_at = NULL,
			    updated_at = now()
			WHERE id = $1 AND status = $4`,
			id, models.StatusCompleted, output.ID, models.StatusProcessing)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected error: %w", err)
		}
		if n == 0 {
			return ErrConflict
		}
		return nil
	})
}

// Fail finalizes an unsuccessful job. Progress resets to zero and the error
// message is recorded. ErrConflict when the job is not processing anymore.
func (r *Jobs) Fail(ctx context.Context, id uuid.UUID, message string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $2,
		    progress = 0,
		    error_message = $3,
		    lease_expires_at = NULL,
		    updated_at = now()
		WHERE id = $1 AND status = $4`,
		id, models.StatusFailed, message, models.StatusProcessing)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// Cancel moves an owner's cancellable job to cancelled. Returns false when
// the job is already terminal; the caller resolves unknown ids separately.
func (r *Jobs) Cancel(ctx context.Context, id uuid.UUID, owner models.Owner) (bool, error) {
	cond, arg := ownerCond(owner, 2)
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $3, lease_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND status IN ($4, $5) AND `+cond,
		id, arg, models.StatusCancelled, models.StatusPending, models.StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n > 0, nil
}

// PendingOlderThan returns ids of jobs still pending past the cutoff. The
// sweeper re-enqueues them: an enqueue that failed after the row committed
// would otherwise strand the job forever.
func (r *Jobs) PendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM jobs
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at
		LIMIT $3`,
		models.StatusPending, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// FailExpiredLeases reaps processing jobs whose lease has lapsed, marking
// them failed with the given message. Returns the reaped ids. A worker that
// finalizes first wins; its lease is already cleared so this matches nothing.
func (r *Jobs) FailExpiredLeases(ctx context.Context, now time.Time, message string) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE jobs
		SET status = $2, progress = 0, error_message = $3,
		    lease_expires_at = NULL, updated_at = now()
		WHERE status = $1 AND lease_expires_at IS NOT NULL AND lease_expires_at < $4
		RETURNING id`,
		models.StatusProcessing, models.StatusFailed, message, now)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
