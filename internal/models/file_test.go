package models

import (
	"testing"
	"time"
)

func TestFileTypeFromMime(t *testing.T) {
	cases := []struct {
		mime string
		want FileType
	}{
		{"application/pdf", FileTypePDF},
		{"application/msword", FileTypeWord},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", FileTypeWord},
		{"application/vnd.ms-excel", FileTypeExcel},
		{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", FileTypeExcel},
		{"image/png", FileTypeImage},
		{"IMAGE/JPEG", FileTypeImage},
		{"text/plain", FileTypeOther},
		{"application/zip", FileTypeOther},
	}
	for _, c := range cases {
		if got := FileTypeFromMime(c.mime); got != c.want {
			t.Errorf("FileTypeFromMime(%q) = %q, want %q", c.mime, got, c.want)
		}
	}
}

func TestFileAvailable(t *testing.T) {
	now := time.Now()

	live := &File{ExpiresAt: now.Add(time.Hour)}
	if !live.Available(now) {
		t.Error("unexpired file should be available")
	}

	expired := &File{ExpiresAt: now.Add(-time.Minute)}
	if expired.Available(now) {
		t.Error("expired file should not be available")
	}

	deleted := &File{ExpiresAt: now.Add(time.Hour), IsDeleted: true}
	if deleted.Available(now) {
		t.Error("tombstoned file should not be available")
	}
}
