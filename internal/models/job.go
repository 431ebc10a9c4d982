package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal returns true for statuses that represent a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// validTransitions encodes the job state machine. Transitions are monotonic:
// no state is re-entered and nothing leaves a terminal state.
var validTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusProcessing: true,
		StatusCancelled:  true,
	},
	StatusProcessing: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s Status) CanTransitionTo(next Status) bool {
	return validTransitions[s][next]
}

// Cancellable reports whether a cancel request may be honoured.
func (s Status) Cancellable() bool {
	return s == StatusPending || s == StatusProcessing
}

// Job represents one unit of asynchronous work in the database.
type Job struct {
	ID                    uuid.UUID   `json:"job_id"`
	ToolName              string      `json:"tool_name"`
	Status                Status      `json:"status"`
	UserID                *uuid.UUID  `json:"user_id,omitempty"`
	GuestToken            *string     `json:"-"`
	InputFileIDs          []uuid.UUID `json:"input_file_ids"`
	Params                []byte      `json:"-"` // tool parameters, JSONB
	InputFilesCount       int         `json:"input_files_count"`
	OutputFileID          *uuid.UUID  `json:"output_file_id,omitempty"`
	Progress              int         `json:"progress"`
	ErrorMessage          *string     `json:"error_message,omitempty"`
	ProcessingStartedAt   *time.Time  `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time  `json:"processing_completed_at,omitempty"`
	ProcessingTimeSeconds *float64    `json:"processing_time_seconds,omitempty"`
	LeaseExpiresAt        *time.Time  `json:"-"` // set while processing, reaper watches it
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
	ExpiresAt             time.Time   `json:"expires_at"`
}

// Owner returns the job's owner tag.
func (j *Job) Owner() Owner {
	return Owner{UserID: j.UserID, GuestToken: j.GuestToken}
}

// SetOwner stamps the mutually-exclusive owner columns.
func (j *Job) SetOwner(o Owner) {
	j.UserID = o.UserID
	j.GuestToken = o.GuestToken
}
