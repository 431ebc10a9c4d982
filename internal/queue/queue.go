// Package queue carries job execution requests from the submission path to
// the worker pool. Delivery is at-least-once; consumers must tolerate
// duplicates.
package queue

import (
	"context"

	"github.com/google/uuid"
)

// Message is one work item. It is a pointer to a job row, not a payload
// copy: the worker re-reads inputs and parameters from the metadata store.
type Message struct {
	JobID uuid.UUID `json:"job_id"`
}

// Producer enqueues work items durably.
type Producer interface {
	Enqueue(ctx context.Context, msg Message) error
	Close() error
}

// Consumer delivers work items to a handler until the context ends.
// A nil handler result acknowledges the message; a non-nil result leaves it
// unacknowledged for redelivery.
type Consumer interface {
	Run(ctx context.Context, handler func(ctx context.Context, msg Message) error) error
	Close() error
}
