package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fileforge/internal/models"
	"fileforge/internal/queue"
	"fileforge/internal/storage"
	"fileforge/internal/tools"
)

// JobStore is the slice of the jobs repository the services need.
type JobStore interface {
	Create(ctx context.Context, j *models.Job) error
	GetForOwner(ctx context.Context, id uuid.UUID, owner models.Owner) (*models.Job, error)
	ListForOwner(ctx context.Context, owner models.Owner, limit, offset int) ([]*models.Job, int, error)
	CountByStatus(ctx context.Context, owner models.Owner) (map[models.Status]int, error)
	Cancel(ctx context.Context, id uuid.UUID, owner models.Owner) (bool, error)
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Jobs implements submission, polling, cancellation and history.
type Jobs struct {
	log      *logrus.Logger
	jobs     JobStore
	files    FileStore
	producer queue.Producer
	jobTTL   time.Duration
}

// NewJobs wires the jobs service.
func NewJobs(log *logrus.Logger, jobs JobStore, files FileStore, producer queue.Producer, jobTTL time.Duration) *Jobs {
	return &Jobs{log: log, jobs: jobs, files: files, producer: producer, jobTTL: jobTTL}
}

// Submit validates a tool invocation, persists the pending job and
// enqueues its work item. The row commits before the enqueue; if the
// enqueue fails the sweeper re-enqueues the stray pending job later,
// so submission still succeeds.
func (s *Jobs) Submit(ctx context.Context, owner models.Owner, tool tools.Name, fileIDs []uuid.UUID, params tools.Params) (*models.Job, error) {
	if err := owner.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidInput)
	}

	spec, ok := tools.Lookup(tool)
	if !ok {
		return nil, fmt.Errorf("unknown tool %q: %w", tool, ErrInvalidInput)
	}
	if err := spec.ValidateInputCount(len(fileIDs)); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidInput)
	}
	if params.Tool() != tool {
		return nil, fmt.Errorf("params are for %q, not %q: %w", params.Tool(), tool, ErrInvalidInput)
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidInput)
	}

	// The submitter supplied these ids, so naming the offender in the
	// error leaks nothing.
	inputs, err := s.files.GetManyForOwner(ctx, fileIDs, owner, time.Now())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidInput)
	}
	if err != nil {
		return nil, err
	}
	for _, f := range inputs {
		if !spec.AcceptsType(f.FileType) {
			return nil, fmt.Errorf("file %s is %s, not accepted by %s: %w", f.ID, f.FileType, tool, ErrInvalidInput)
		}
	}

	raw, err := tools.Encode(params)
	if err != nil {
		return nil, err
	}

	job := &models.Job{
		ID:              uuid.New(),
		ToolName:        string(tool),
		Status:          models.StatusPending,
		InputFileIDs:    fileIDs,
		Params:          raw,
		InputFilesCount: len(fileIDs),
		ExpiresAt:       time.Now().Add(s.jobTTL),
	}
	job.SetOwner(owner)

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	if err := s.producer.Enqueue(ctx, queue.Message{JobID: job.ID}); err != nil {
		s.log.WithField("job_id", job.ID).WithError(err).Error("work item not enqueued, sweeper will retry")
	}

	s.log.WithFields(logrus.Fields{
		"job_id":      job.ID,
		"tool":        job.ToolName,
		"input_files": job.InputFilesCount,
	}).Info("job submitted")
	return job, nil
}

// Get returns the full job record. Foreign jobs read as missing.
func (s *Jobs) Get(ctx context.Context, id uuid.UUID, owner models.Owner) (*models.Job, error) {
	j, err := s.jobs.GetForOwner(ctx, id, owner)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	return j, err
}

// StatusInfo is the polling-friendly projection of a job.
type StatusInfo struct {
	JobID        uuid.UUID     `json:"job_id"`
	Status       models.Status `json:"status"`
	Progress     int           `json:"progress"`
	ResultURL    *string       `json:"result_url,omitempty"`
	ErrorMessage *string       `json:"error_message,omitempty"`
}

// Status projects the job into the polling shape. The result link is
// present exactly when the job completed.
func (s *Jobs) Status(ctx context.Context, id uuid.UUID, owner models.Owner) (*StatusInfo, error) {
	j, err := s.Get(ctx, id, owner)
	if err != nil {
		return nil, err
	}

	info := &StatusInfo{
		JobID:        j.ID,
		Status:       j.Status,
		Progress:     j.Progress,
		ErrorMessage: j.ErrorMessage,
	}
	if j.Status == models.StatusCompleted && j.OutputFileID != nil {
		url := fmt.Sprintf("/api/v1/files/%s/download", j.OutputFileID)
		info.ResultURL = &url
	}
	return info, nil
}

// Cancel moves a pending or processing job to cancelled. It returns
// false without error when the job is already terminal, and ErrNotFound
// when the id is unknown or foreign.
func (s *Jobs) Cancel(ctx context.Context, id uuid.UUID, owner models.Owner) (bool, error) {
	ok, err := s.jobs.Cancel(ctx, id, owner)
	if err != nil {
		return false, err
	}
	if ok {
		s.log.WithField("job_id", id).Info("job cancelled")
		return true, nil
	}
	if _, err := s.Get(ctx, id, owner); err != nil {
		return false, err
	}
	return false, nil
}

// HistoryPage is one page of an owner's job history, newest first.
type HistoryPage struct {
	Jobs     []*models.Job `json:"jobs"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	HasMore  bool          `json:"has_more"`
}

// History lists the owner's jobs newest first.
func (s *Jobs) History(ctx context.Context, owner models.Owner, page, pageSize int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}
	offset := (page - 1) * pageSize

	jobs, total, err := s.jobs.ListForOwner(ctx, owner, pageSize, offset)
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}

	return &HistoryPage{
		Jobs:     jobs,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		HasMore:  offset+len(jobs) < total,
	}, nil
}
