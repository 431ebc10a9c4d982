package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fileforge/internal/blob"
	"fileforge/internal/models"
	"fileforge/internal/storage"
)

// FileStore is the slice of the files repository the services need.
type FileStore interface {
	Create(ctx context.Context, f *models.File) error
	GetForOwner(ctx context.Context, id uuid.UUID, owner models.Owner, now time.Time) (*models.File, error)
	GetManyForOwner(ctx context.Context, ids []uuid.UUID, owner models.Owner, now time.Time) ([]*models.File, error)
	RecordDownload(ctx context.Context, id uuid.UUID) error
	MarkDeleted(ctx context.Context, id uuid.UUID, owner models.Owner) (bool, error)
	Stats(ctx context.Context, owner models.Owner, now time.Time) (int, int64, error)
}

// sniffLen matches the prefix mimetype reads for detection.
const sniffLen = 3072

// Files implements upload, metadata access, download and deletion.
type Files struct {
	log     *logrus.Logger
	files   FileStore
	blobs   blob.Store
	maxSize int64
	ttl     time.Duration
}

// NewFiles wires the files service.
func NewFiles(log *logrus.Logger, files FileStore, blobs blob.Store, maxSize int64, ttl time.Duration) *Files {
	return &Files{log: log, files: files, blobs: blobs, maxSize: maxSize, ttl: ttl}
}

// Upload stores one uploaded file: sniffs the content type from the
// leading bytes, streams everything to the blob store while hashing,
// then records the metadata row.
func (s *Files) Upload(ctx context.Context, owner models.Owner, filename string, r io.Reader, size int64) (*models.File, error) {
	if err := owner.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidInput)
	}
	if size <= 0 {
		return nil, fmt.Errorf("empty upload: %w", ErrInvalidInput)
	}
	if size > s.maxSize {
		return nil, fmt.Errorf("file %q exceeds the maximum size of %d bytes: %w", filename, s.maxSize, ErrInvalidInput)
	}

	header := make([]byte, sniffLen)
	n, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	header = header[:n]
	mtype := mimetype.Detect(header)

	id := uuid.New()
	ext := filepath.Ext(filename)
	if ext == "" {
		ext = mtype.Extension()
	}
	key := id.String() + ext

	sum := sha256.New()
	content := io.TeeReader(io.MultiReader(bytes.NewReader(header), r), sum)
	if err := s.blobs.Put(ctx, key, content, size, mtype.String()); err != nil {
		return nil, fmt.Errorf("storing blob: %w", err)
	}

	f := &models.File{
		ID:               id,
		OriginalFilename: filename,
		StoredFilename:   key,
		StoragePath:      key,
		FileSize:         size,
		FileType:         models.FileTypeFromMime(mtype.String()),
		MimeType:         mtype.String(),
		Checksum:         hex.EncodeToString(sum.Sum(nil)),
		IsInput:          true,
		StorageBackend:   s.blobs.Backend(),
		ExpiresAt:        time.Now().Add(s.ttl),
	}
	f.SetOwner(owner)

	if err := s.files.Create(ctx, f); err != nil {
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			s.log.WithField("key", key).WithError(derr).Warn("orphaned upload blob not deleted")
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"file_id":   id,
		"file_type": f.FileType,
		"mime_type": f.MimeType,
		"size":      size,
	}).Info("file uploaded")
	return f, nil
}

// Get returns file metadata under the owner visibility rules: foreign,
// deleted and expired files all read as missing.
func (s *Files) Get(ctx context.Context, id uuid.UUID, owner models.Owner) (*models.File, error) {
	f, err := s.files.GetForOwner(ctx, id, owner, time.Now())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	return f, err
}

// Download resolves the file and opens its content stream. Counting
// the download is best-effort and never blocks the stream.
func (s *Files) Download(ctx context.Context, id uuid.UUID, owner models.Owner) (*models.File, io.ReadCloser, error) {
	f, err := s.Get(ctx, id, owner)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.blobs.Open(ctx, f.StoragePath)
	if errors.Is(err, blob.ErrNotFound) {
		s.log.WithField("file_id", id).Error("file row is live but its blob is missing")
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	if err := s.files.RecordDownload(ctx, id); err != nil {
		s.log.WithField("file_id", id).WithError(err).Warn("download not recorded")
	}
	return f, rc, nil
}

// Delete tombstones the file row. The blob stays until the sweeper
// reclaims it.
func (s *Files) Delete(ctx context.Context, id uuid.UUID, owner models.Owner) error {
	ok, err := s.files.MarkDeleted(ctx, id, owner)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	s.log.WithField("file_id", id).Info("file deleted")
	return nil
}
