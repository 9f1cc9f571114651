// Package jobs provides the durable at-least-once background job queue.
//
// Webhook ingestion only validates and enqueues; the actual order
// processing runs here. A job is claimed by exactly one worker at a time,
// retried with exponential backoff on failure, and marked terminally
// failed once its attempt budget is exhausted. Handlers must be
// idempotent: a crash between execution and acknowledgment replays the
// job.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job types.
const (
	TypeProcessOrder = "process_order"
)

// ErrNotFound is returned when no job row exists.
var ErrNotFound = errors.New("job not found")

// Job is one unit of background work.
type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	ShopID      string          `json:"shopId"`
	Payload     json.RawMessage `json:"payload"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	RunAt       time.Time       `json:"runAt"`
	LastError   string          `json:"lastError,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Queue persists jobs. Claim must hand each queued job to exactly one
// caller even under concurrent polling.
type Queue interface {
	// Enqueue adds a queued job. ID and timestamps are filled if empty.
	Enqueue(ctx context.Context, job *Job) error

	// Claim atomically takes the oldest due queued job, marks it running
	// with attempts+1, and returns it. Returns nil when nothing is due.
	Claim(ctx context.Context) (*Job, error)

	// MarkSucceeded finishes a running job.
	MarkSucceeded(ctx context.Context, id string) error

	// MarkFailed terminally fails a running job.
	MarkFailed(ctx context.Context, id string, lastError string) error

	// Requeue puts a running job back in the queue for a later attempt.
	Requeue(ctx context.Context, id string, runAt time.Time, lastError string) error

	// Get returns one job by id.
	Get(ctx context.Context, id string) (*Job, error)

	// Depth counts jobs currently queued or running.
	Depth(ctx context.Context) (int, error)

	// ReapStale requeues running jobs untouched for longer than olderThan.
	// Covers workers that died mid-job; the replay is what makes delivery
	// at-least-once.
	ReapStale(ctx context.Context, olderThan time.Duration) (int, error)
}
