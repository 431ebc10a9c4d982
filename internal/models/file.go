package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileType is a coarse content classification derived from the MIME type.
type FileType string

const (
	FileTypePDF   FileType = "pdf"
	FileTypeWord  FileType = "word"
	FileTypeExcel FileType = "excel"
	FileTypeImage FileType = "image"
	FileTypeOther FileType = "other"
)

// FileTypeFromMime maps a sniffed MIME type to a FileType.
func FileTypeFromMime(mime string) FileType {
	mime = strings.ToLower(mime)
	switch {
	case mime == "application/pdf":
		return FileTypePDF
	case mime == "application/msword",
		mime == "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return FileTypeWord
	case mime == "application/vnd.ms-excel",
		mime == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return FileTypeExcel
	case strings.HasPrefix(mime, "image/"):
		return FileTypeImage
	default:
		return FileTypeOther
	}
}

// StorageBackend names where a file's bytes live.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// File represents one stored blob plus its metadata in the database.
type File struct {
	ID               uuid.UUID  `json:"file_id"`
	OriginalFilename string     `json:"original_filename"`
	StoredFilename   string     `json:"stored_filename"`
	StoragePath      string     `json:"-"` // blob store key
	FileSize         int64      `json:"file_size"`
	FileType         FileType   `json:"file_type"`
	MimeType         string     `json:"mime_type"`
	Checksum         string     `json:"checksum,omitempty"` // SHA-256 hex of content
	UserID           *uuid.UUID `json:"user_id,omitempty"`
	GuestToken       *string    `json:"-"`
	IsInput          bool       `json:"is_input"`
	IsDeleted        bool       `json:"-"`
	StorageBackend   string     `json:"-"` // "local" or "s3"
	DownloadCount    int        `json:"download_count"`
	LastDownloadedAt *time.Time `json:"last_downloaded_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
}

// Owner returns the file's owner tag.
func (f *File) Owner() Owner {
	return Owner{UserID: f.UserID, GuestToken: f.GuestToken}
}

// SetOwner stamps the mutually-exclusive owner columns.
func (f *File) SetOwner(o Owner) {
	f.UserID = o.UserID
	f.GuestToken = o.GuestToken
}

// Available reports whether the file may be read at the given instant.
// Expired or tombstoned files must behave as not found everywhere.
func (f *File) Available(now time.Time) bool {
	return !f.IsDeleted && now.Before(f.ExpiresAt)
}
