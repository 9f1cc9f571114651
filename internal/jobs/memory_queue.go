package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/Kenny3D1/fraudpop/internal/idgen"
)

// MemoryQueue is an in-memory implementation of Queue for demo/test use.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewMemoryQueue creates an in-memory job queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{jobs: make(map[string]*Job)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	cp := *job
	if cp.ID == "" {
		cp.ID = idgen.WithPrefix("job_")
	}
	cp.Status = StatusQueued
	if cp.RunAt.IsZero() {
		cp.RunAt = now
	}
	cp.CreatedAt = now
	cp.UpdatedAt = now
	q.jobs[cp.ID] = &cp
	job.ID = cp.ID
	return nil
}

func (q *MemoryQueue) Claim(ctx context.Context) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var oldest *Job
	for _, j := range q.jobs {
		if j.Status != StatusQueued || j.RunAt.After(now) {
			continue
		}
		if oldest == nil || j.RunAt.Before(oldest.RunAt) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, nil
	}
	oldest.Status = StatusRunning
	oldest.Attempts++
	oldest.UpdatedAt = now
	cp := *oldest
	return &cp, nil
}

func (q *MemoryQueue) MarkSucceeded(ctx context.Context, id string) error {
	return q.setStatus(id, StatusSucceeded, "")
}

func (q *MemoryQueue) MarkFailed(ctx context.Context, id string, lastError string) error {
	return q.setStatus(id, StatusFailed, lastError)
}

func (q *MemoryQueue) setStatus(id string, status Status, lastError string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[id]
	if !ok {
		return ErrNotFound
	}
	j.Status = status
	if lastError != "" {
		j.LastError = lastError
	}
	j.UpdatedAt = time.Now()
	return nil
}

func (q *MemoryQueue) Requeue(ctx context.Context, id string, runAt time.Time, lastError string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[id]
	if !ok {
		return ErrNotFound
	}
	j.Status = StatusQueued
	j.RunAt = runAt
	j.LastError = lastError
	j.UpdatedAt = time.Now()
	return nil
}

func (q *MemoryQueue) Get(ctx context.Context, id string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (q *MemoryQueue) Depth(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, j := range q.jobs {
		if j.Status == StatusQueued || j.Status == StatusRunning {
			n++
		}
	}
	return n, nil
}

func (q *MemoryQueue) ReapStale(ctx context.Context, olderThan time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	n := 0
	for _, j := range q.jobs {
		if j.Status == StatusRunning && j.UpdatedAt.Before(cutoff) {
			j.Status = StatusQueued
			j.RunAt = time.Now()
			j.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}
