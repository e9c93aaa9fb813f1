package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lightbasenl/identity-core/internal/storage/db"
)

// Handler processes one job's payload. A returned error leaves the job in
// the queue for retry after backoff; a nil error deletes the row.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Pool is the background job worker pool (spec §5: "a separate pool of
// background job workers, default three"). Each worker polls independently
// using FOR UPDATE SKIP LOCKED, so the pool scales without a shared queue.
type Pool struct {
	pool       *pgxpool.Pool
	q          *db.Queries
	logger     *slog.Logger
	handlers   map[string]Handler
	workers    int
	pollEvery  time.Duration
	batchSize  int
	jobTimeout time.Duration
}

type PoolConfig struct {
	Workers    int           // default 3, per spec §5
	PollEvery  time.Duration // default 2s
	BatchSize  int           // default 10
	JobTimeout time.Duration // default 15s, mirrors the teacher's per-email timeout
}

func NewPool(pgPool *pgxpool.Pool, q *db.Queries, logger *slog.Logger, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 15 * time.Second
	}
	return &Pool{
		pool:       pgPool,
		q:          q,
		logger:     logger,
		handlers:   map[string]Handler{},
		workers:    cfg.Workers,
		pollEvery:  cfg.PollEvery,
		batchSize:  cfg.BatchSize,
		jobTimeout: cfg.JobTimeout,
	}
}

// Handle registers the handler invoked for jobName. Unregistered job names
// are logged and left in the queue rather than silently dropped.
func (p *Pool) Handle(jobName string, h Handler) {
	p.handlers[jobName] = h
}

// Run starts the configured number of workers and blocks until ctx is
// cancelled, then waits for in-flight jobs to finish.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		workerID := fmt.Sprintf("worker-%d", i)
		go func() {
			defer wg.Done()
			p.runWorker(ctx, workerID)
		}()
	}
	wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, workerID string) {
	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx, workerID)
		}
	}
}

func (p *Pool) drain(ctx context.Context, workerID string) {
	claimed, err := p.q.ClaimJobs(ctx, workerID, p.batchSize)
	if err != nil {
		p.logger.Error("claim jobs failed", "worker", workerID, "error", err)
		return
	}
	for _, job := range claimed {
		p.process(ctx, workerID, job)
	}
}

func (p *Pool) process(ctx context.Context, workerID string, job db.Job) {
	handler, ok := p.handlers[job.JobName]
	if !ok {
		p.logger.Warn("no handler registered for job, leaving queued", "job_name", job.JobName, "worker", workerID)
		retryAfter := pgtype.Timestamptz{Time: time.Now().Add(p.pollEvery * 10), Valid: true}
		_ = p.q.ReleaseJob(ctx, job.ID, retryAfter, "no handler registered")
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	err := handler(jobCtx, job.Payload)
	cancel()

	if err != nil {
		backoff := backoffFor(int(job.Attempts))
		p.logger.Error("job handler failed, will retry", "job_name", job.JobName, "attempts", job.Attempts, "backoff", backoff, "error", err)
		retryAfter := pgtype.Timestamptz{Time: time.Now().Add(backoff), Valid: true}
		if relErr := p.q.ReleaseJob(ctx, job.ID, retryAfter, err.Error()); relErr != nil {
			p.logger.Error("release job failed", "job_name", job.JobName, "error", relErr)
		}
		return
	}

	if err := p.q.DeleteJob(ctx, job.ID); err != nil {
		p.logger.Error("delete completed job failed", "job_name", job.JobName, "error", err)
	}
}

// backoffFor mirrors the teacher's 5m/10m/20m exponential email-retry
// schedule, capped so a flaky handler never waits more than an hour.
func backoffFor(attempts int) time.Duration {
	base := 5 * time.Minute
	d := time.Duration(math.Pow(2, float64(attempts))) * base
	if d > time.Hour {
		return time.Hour
	}
	return d
}
