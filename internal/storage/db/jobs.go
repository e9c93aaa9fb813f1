package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

// Job mirrors the `jobs` outbox table.
type Job struct {
	ID          pgtype.UUID
	JobName     string
	Payload     []byte
	AvailableAt pgtype.Timestamptz
	LockedAt    pgtype.Timestamptz
	LockedBy    pgtype.Text
	Attempts    int32
	LastError   pgtype.Text
	CreatedAt   pgtype.Timestamptz
}

// EnqueueJob inserts a job row. Called inside the same transaction as the
// state change it reports (spec §5): if that transaction rolls back, the
// row never becomes visible to a poller.
func (q *Queries) EnqueueJob(ctx context.Context, jobName string, payload []byte) (Job, error) {
	var j Job
	err := q.db.QueryRow(ctx, `
		INSERT INTO jobs (job_name, payload) VALUES ($1, $2)
		RETURNING id, job_name, payload, available_at, locked_at, locked_by, attempts, last_error, created_at
	`, jobName, payload).Scan(&j.ID, &j.JobName, &j.Payload, &j.AvailableAt, &j.LockedAt, &j.LockedBy, &j.Attempts, &j.LastError, &j.CreatedAt)
	return j, err
}

// ClaimJobs locks up to limit available, unlocked jobs for workerID using
// SKIP LOCKED so concurrent worker pools never block on each other.
func (q *Queries) ClaimJobs(ctx context.Context, workerID string, limit int) ([]Job, error) {
	rows, err := q.db.Query(ctx, `
		UPDATE jobs SET locked_at = now(), locked_by = $1
		WHERE id IN (
			SELECT id FROM jobs
			WHERE locked_at IS NULL AND available_at <= now()
			ORDER BY available_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, job_name, payload, available_at, locked_at, locked_by, attempts, last_error, created_at
	`, workerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.JobName, &j.Payload, &j.AvailableAt, &j.LockedAt, &j.LockedBy, &j.Attempts, &j.LastError, &j.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (q *Queries) DeleteJob(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	return err
}

// ReleaseJob unlocks a job after a failed handler, scheduling it for retry
// after backoff and recording the error for observability.
func (q *Queries) ReleaseJob(ctx context.Context, id pgtype.UUID, retryAfter pgtype.Timestamptz, lastError string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE jobs SET locked_at = NULL, locked_by = NULL, available_at = $2,
			attempts = attempts + 1, last_error = $3
		WHERE id = $1
	`, id, retryAfter, lastError)
	return err
}
