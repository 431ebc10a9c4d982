package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fileforge/internal/models"
	"fileforge/internal/storage"
)

const recentJobsLimit = 5

// Users implements the account-facing operations: dashboard, profile
// and deactivation. All of them require a registered user.
type Users struct {
	log   *logrus.Logger
	users UserStore
	jobs  JobStore
	files FileStore
}

// NewUsers wires the users service.
func NewUsers(log *logrus.Logger, users UserStore, jobs JobStore, files FileStore) *Users {
	return &Users{log: log, users: users, jobs: jobs, files: files}
}

// Dashboard aggregates an account's activity.
type Dashboard struct {
	User          *models.User  `json:"user"`
	TotalJobs     int           `json:"total_jobs"`
	CompletedJobs int           `json:"completed_jobs"`
	FailedJobs    int           `json:"failed_jobs"`
	TotalFiles    int           `json:"total_files_processed"`
	StorageUsedMB float64       `json:"storage_used_mb"`
	RecentJobs    []*models.Job `json:"recent_jobs"`
}

// GetDashboard builds the dashboard for a registered user.
func (s *Users) GetDashboard(ctx context.Context, userID uuid.UUID) (*Dashboard, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	owner := models.UserOwner(userID)

	counts, err := s.jobs.CountByStatus(ctx, owner)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}

	fileCount, storageBytes, err := s.files.Stats(ctx, owner, time.Now())
	if err != nil {
		return nil, err
	}

	recent, _, err := s.jobs.ListForOwner(ctx, owner, recentJobsLimit, 0)
	if err != nil {
		return nil, err
	}
	if recent == nil {
		recent = []*models.Job{}
	}

	return &Dashboard{
		User:          u,
		TotalJobs:     total,
		CompletedJobs: counts[models.StatusCompleted],
		FailedJobs:    counts[models.StatusFailed],
		TotalFiles:    fileCount,
		StorageUsedMB: float64(storageBytes) / (1 << 20),
		RecentJobs:    recent,
	}, nil
}

// GetProfile returns the account, ErrNotFound if it disappeared.
func (s *Users) GetProfile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	return u, err
}

// UpdateProfile applies partial profile changes.
func (s *Users) UpdateProfile(ctx context.Context, userID uuid.UUID, fullName, username *string) (*models.User, error) {
	u, err := s.users.UpdateProfile(ctx, userID, fullName, username)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if errors.Is(err, storage.ErrDuplicate) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, err
	}
	s.log.WithField("user_id", userID).Info("profile updated")
	return u, nil
}

// Deactivate flips the account inactive. Jobs and files stay owned by
// it; rows are never hard-deleted.
func (s *Users) Deactivate(ctx context.Context, userID uuid.UUID) error {
	err := s.users.Deactivate(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	s.log.WithField("user_id", userID).Info("account deactivated")
	return nil
}
