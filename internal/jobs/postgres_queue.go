package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Kenny3D1/fraudpop/internal/idgen"
)

// PostgresQueue implements Queue with PostgreSQL.
//
// Claim uses FOR UPDATE SKIP LOCKED so concurrent workers never block each
// other and never double-claim: each queued row goes to exactly one worker.
type PostgresQueue struct {
	db *sql.DB
}

// NewPostgresQueue creates a PostgreSQL-backed job queue.
func NewPostgresQueue(db *sql.DB) *PostgresQueue {
	return &PostgresQueue{db: db}
}

func (q *PostgresQueue) Enqueue(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = idgen.WithPrefix("job_")
	}
	runAt := job.RunAt
	if runAt.IsZero() {
		runAt = time.Now()
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, shop_id, payload, status, attempts, max_attempts, run_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'queued', 0, $5, $6, NOW(), NOW())
	`, job.ID, job.Type, job.ShopID, []byte(job.Payload), job.MaxAttempts, runAt)
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

func (q *PostgresQueue) Claim(ctx context.Context) (*Job, error) {
	job := &Job{}
	var payload []byte
	var lastError sql.NullString
	err := q.db.QueryRowContext(ctx, `
		UPDATE jobs SET
			status     = 'running',
			attempts   = attempts + 1,
			updated_at = NOW()
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'queued' AND run_at <= NOW()
			ORDER BY run_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, type, shop_id, payload, status, attempts, max_attempts, run_at, last_error, created_at, updated_at
	`).Scan(&job.ID, &job.Type, &job.ShopID, &payload, &job.Status, &job.Attempts,
		&job.MaxAttempts, &job.RunAt, &lastError, &job.CreatedAt, &job.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	job.Payload = payload
	job.LastError = lastError.String
	return job, nil
}

func (q *PostgresQueue) MarkSucceeded(ctx context.Context, id string) error {
	return q.finish(ctx, id, StatusSucceeded, "")
}

func (q *PostgresQueue) MarkFailed(ctx context.Context, id string, lastError string) error {
	return q.finish(ctx, id, StatusFailed, lastError)
}

func (q *PostgresQueue) finish(ctx context.Context, id string, status Status, lastError string) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET status = $2, last_error = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1
	`, id, string(status), lastError)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *PostgresQueue) Requeue(ctx context.Context, id string, runAt time.Time, lastError string) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'queued', run_at = $2, last_error = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1
	`, id, runAt, lastError)
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *PostgresQueue) Get(ctx context.Context, id string) (*Job, error) {
	job := &Job{}
	var payload []byte
	var lastError sql.NullString
	err := q.db.QueryRowContext(ctx, `
		SELECT id, type, shop_id, payload, status, attempts, max_attempts, run_at, last_error, created_at, updated_at
		FROM jobs WHERE id = $1
	`, id).Scan(&job.ID, &job.Type, &job.ShopID, &payload, &job.Status, &job.Attempts,
		&job.MaxAttempts, &job.RunAt, &lastError, &job.CreatedAt, &job.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	job.Payload = payload
	job.LastError = lastError.String
	return job, nil
}

func (q *PostgresQueue) Depth(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM jobs WHERE status IN ('queued', 'running')
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}

func (q *PostgresQueue) ReapStale(ctx context.Context, olderThan time.Duration) (int, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'queued', run_at = NOW(), updated_at = NOW()
		WHERE status = 'running' AND updated_at < NOW() - $1::interval
	`, fmt.Sprintf("%f seconds", olderThan.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("reap stale jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
