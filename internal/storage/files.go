package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fileforge/internal/dbx"
	"fileforge/internal/models"
)

// Files is the PostgreSQL repository for file metadata.
type Files struct {
	db dbx.DBTX
}

// NewFiles constructs a files repository bound to the given DBTX.
func NewFiles(db dbx.DBTX) *Files {
	return &Files{db: db}
}

const fileColumns = `id, original_filename, stored_filename, storage_path, file_size,
	file_type, mime_type, checksum, user_id, guest_token, is_input, is_deleted,
	storage_backend, download_count, last_downloaded_at, created_at, updated_at, expires_at`

func scanFile(s rowScanner) (*models.File, error) {
	var f models.File
	err := s.Scan(&f.ID, &f.OriginalFilename, &f.StoredFilename, &f.StoragePath,
		&f.FileSize, &f.FileType, &f.MimeType, &f.Checksum, &f.UserID, &f.GuestToken,
		&f.IsInput, &f.IsDeleted, &f.StorageBackend, &f.DownloadCount,
		&f.LastDownloadedAt, &f.CreatedAt, &f.UpdatedAt, &f.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &f, nil
}

func insertFile(ctx context.Context, db dbx.DBTX, f *models.File) error {
	query := `
		INSERT INTO files (id, original_filename, stored_filename, storage_path,
			file_size, file_type, mime_type, checksum, user_id, guest_token,
			is_input, storage_backend, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`

	err := db.QueryRowContext(ctx, query,
		f.ID, f.OriginalFilename, f.StoredFilename, f.StoragePath,
		f.FileSize, f.FileType, f.MimeType, f.Checksum, f.UserID, f.GuestToken,
		f.IsInput, f.StorageBackend, f.ExpiresAt,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Create inserts a new file row.
func (r *Files) Create(ctx context.Context, f *models.File) error {
	return insertFile(ctx, r.db, f)
}

// GetByID returns the raw row regardless of owner, expiry or tombstone.
// Internal use only; caller-facing paths go through GetForOwner.
func (r *Files) GetByID(ctx context.Context, id uuid.UUID) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1`
	return scanFile(r.db.QueryRowContext(ctx, query, id))
}

// GetForOwner returns the file only when it belongs to owner, is not
// tombstoned, and has not expired at the given instant. Any miss is
// ErrNotFound, indistinguishable from an unknown id.
func (r *Files) GetForOwner(ctx context.Context, id uuid.UUID, owner models.Owner, now time.Time) (*models.File, error) {
	cond, arg := ownerCond(owner, 3)
	query := `SELECT ` + fileColumns + ` FROM files
		WHERE id = $1 AND is_deleted = FALSE AND expires_at > $2 AND ` + cond
	return scanFile(r.db.QueryRowContext(ctx, query, id, now, arg))
}

// GetManyForOwner resolves a list of file ids under the same visibility rules
// as GetForOwner, preserving the requested order. The first id that does not
// resolve is reported in the error.
func (r *Files) GetManyForOwner(ctx context.Context, ids []uuid.UUID, owner models.Owner, now time.Time) ([]*models.File, error) {
	byID := make(map[uuid.UUID]*models.File, len(ids))
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	cond, arg := ownerCond(owner, 3)
	query := `SELECT ` + fileColumns + ` FROM files
		WHERE id = ANY($1::uuid[]) AND is_deleted = FALSE AND expires_at > $2 AND ` + cond

	rows, err := r.db.QueryContext(ctx, query, strIDs, now, arg)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		byID[f.ID] = f
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	out := make([]*models.File, 0, len(ids))
	for _, id := range ids {
		f, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("file %s: %w", id, ErrNotFound)
		}
		out = append(out, f)
	}
	return out, nil
}

// RecordDownload bumps the download counter and timestamp. Best-effort side
// effect of a successful resolution; callers must not fail a download on it.
func (r *Files) RecordDownload(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE files
		SET download_count = download_count + 1,
		    last_downloaded_at = now(),
		    updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// MarkDeleted sets the tombstone for an owner's file. Returns false when the
// file is unknown, foreign, or already tombstoned.
func (r *Files) MarkDeleted(ctx context.Context, id uuid.UUID, owner models.Owner) (bool, error) {
	cond, arg := ownerCond(owner, 2)
	res, err := r.db.ExecContext(ctx, `
		UPDATE files SET is_deleted = TRUE, updated_at = now()
		WHERE id = $1 AND is_deleted = FALSE AND `+cond, id, arg)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n > 0, nil
}

// ListExpired returns up to limit files whose expiry has passed and that have
// not been tombstoned yet. The sweeper deletes their blobs then calls MarkSwept.
func (r *Files) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files
		WHERE expires_at < $1 AND is_deleted = FALSE
		ORDER BY expires_at
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// MarkSwept tombstones a file after its blob was reclaimed.
func (r *Files) MarkSwept(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE files SET is_deleted = TRUE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Stats returns the live file count and total bytes for an owner's dashboard.
func (r *Files) Stats(ctx context.Context, owner models.Owner, now time.Time) (int, int64, error) {
	cond, arg := ownerCond(owner, 2)
	query := `
		SELECT COUNT(*), COALESCE(SUM(file_size), 0) FROM files
		WHERE is_deleted = FALSE AND expires_at > $1 AND ` + cond

	var count int
	var bytes int64
	if err := r.db.QueryRowContext(ctx, query, now, arg).Scan(&count, &bytes); err != nil {
		return 0, 0, fmt.Errorf("db error: %w", err)
	}
	return count, bytes, nil
}
