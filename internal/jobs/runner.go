package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Kenny3D1/fraudpop/internal/metrics"
	"github.com/Kenny3D1/fraudpop/internal/retry"
)

// Handler executes one job attempt. Returning nil acknowledges the job;
// any error schedules a retry unless wrapped with retry.Permanent or the
// attempt budget is spent. Handlers must tolerate replays.
type Handler func(ctx context.Context, job *Job) error

// RunnerConfig tunes the worker pool.
type RunnerConfig struct {
	Workers      int
	PollInterval time.Duration
	JobTimeout   time.Duration
	MaxAttempts  int           // default budget when a job carries none
	BaseBackoff  time.Duration // first retry delay, doubled per attempt
	MaxBackoff   time.Duration
	StaleAfter   time.Duration // running jobs older than this get requeued
}

// DefaultRunnerConfig returns sensible defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Workers:      4,
		PollInterval: 250 * time.Millisecond,
		JobTimeout:   30 * time.Second,
		MaxAttempts:  5,
		BaseBackoff:  2 * time.Second,
		MaxBackoff:   5 * time.Minute,
		StaleAfter:   2 * time.Minute,
	}
}

// Runner polls the queue and executes jobs on a fixed worker pool.
type Runner struct {
	queue    Queue
	cfg      RunnerConfig
	logger   *slog.Logger
	handlers map[string]Handler

	stop chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewRunner creates a runner. Register handlers before calling Start.
func NewRunner(queue Queue, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Minute
	}
	return &Runner{
		queue:    queue,
		cfg:      cfg,
		logger:   logger,
		handlers: make(map[string]Handler),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Register binds a handler to a job type. Not safe after Start.
func (r *Runner) Register(jobType string, h Handler) {
	r.handlers[jobType] = h
}

// Start launches the worker pool and the stale-job reaper.
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("job runner started",
		"workers", r.cfg.Workers,
		"pollInterval", r.cfg.PollInterval,
	)
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.workerLoop(ctx, i)
	}
	r.wg.Add(1)
	go r.reaperLoop(ctx)

	go func() {
		r.wg.Wait()
		close(r.done)
	}()
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (r *Runner) Stop() {
	close(r.stop)
	<-r.done
	r.logger.Info("job runner stopped")
}

func (r *Runner) workerLoop(ctx context.Context, id int) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			// Drain until empty so a burst doesn't wait out poll ticks.
			for {
				job, err := r.queue.Claim(ctx)
				if err != nil {
					r.logger.Error("job claim failed", "worker", id, "error", err)
					break
				}
				if job == nil {
					break
				}
				r.execute(ctx, job)

				select {
				case <-ctx.Done():
					return
				case <-r.stop:
					return
				default:
				}
			}
			r.updateDepth(ctx)
		}
	}
}

func (r *Runner) execute(ctx context.Context, job *Job) {
	logger := r.logger.With("jobId", job.ID, "type", job.Type, "shop", job.ShopID, "attempt", job.Attempts)

	handler, ok := r.handlers[job.Type]
	if !ok {
		// Unknown type is never going to succeed; fail it now.
		logger.Error("no handler registered for job type")
		metrics.JobsProcessedTotal.WithLabelValues(job.Type, "failed").Inc()
		metrics.JobsTerminalFailures.WithLabelValues(job.Type).Inc()
		if err := r.queue.MarkFailed(ctx, job.ID, "no handler registered"); err != nil {
			logger.Error("mark failed", "error", err)
		}
		return
	}

	start := time.Now()
	err := r.runHandler(ctx, handler, job)
	metrics.JobDuration.WithLabelValues(job.Type).Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.JobsProcessedTotal.WithLabelValues(job.Type, "succeeded").Inc()
		if err := r.queue.MarkSucceeded(ctx, job.ID); err != nil {
			logger.Error("mark succeeded", "error", err)
		}
		return
	}

	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = r.cfg.MaxAttempts
	}
	if retry.IsPermanent(err) || job.Attempts >= maxAttempts {
		logger.Error("job terminally failed", "error", err, "attempts", job.Attempts)
		metrics.JobsProcessedTotal.WithLabelValues(job.Type, "failed").Inc()
		metrics.JobsTerminalFailures.WithLabelValues(job.Type).Inc()
		if err := r.queue.MarkFailed(ctx, job.ID, err.Error()); err != nil {
			logger.Error("mark failed", "error", err)
		}
		return
	}

	delay := retry.Backoff(r.cfg.BaseBackoff, job.Attempts, r.cfg.MaxBackoff)
	logger.Warn("job attempt failed, requeueing", "error", err, "retryIn", delay)
	metrics.JobsProcessedTotal.WithLabelValues(job.Type, "retried").Inc()
	if err := r.queue.Requeue(ctx, job.ID, time.Now().Add(delay), err.Error()); err != nil {
		logger.Error("requeue", "error", err)
	}
}

// runHandler applies the per-job timeout and converts handler panics into
// errors so one bad payload cannot take a worker down.
func (r *Runner) runHandler(ctx context.Context, handler Handler, job *Job) (err error) {
	if r.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.JobTimeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return handler(ctx, job)
}

func (r *Runner) reaperLoop(ctx context.Context) {
	defer r.wg.Done()

	if r.cfg.StaleAfter <= 0 {
		return
	}
	ticker := time.NewTicker(r.cfg.StaleAfter / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			n, err := r.queue.ReapStale(ctx, r.cfg.StaleAfter)
			if err != nil {
				r.logger.Error("stale job reap failed", "error", err)
				continue
			}
			if n > 0 {
				r.logger.Warn("requeued stale running jobs", "count", n)
			}
		}
	}
}

func (r *Runner) updateDepth(ctx context.Context) {
	n, err := r.queue.Depth(ctx)
	if err != nil {
		return
	}
	metrics.QueueDepth.Set(float64(n))
}
