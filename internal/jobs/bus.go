// Package jobs implements the Event/Job Bus: a transactional outbox that
// lets callers enqueue named jobs inside the same database transaction as
// the state change they report, and a background worker pool that polls and
// dispatches them (spec §5, "enqueued jobs from a rolled-back transaction
// must not be visible").
package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lightbasenl/identity-core/internal/apperr"
	"github.com/lightbasenl/identity-core/internal/storage/db"
)

// Bus is the enqueue side of the Event/Job Bus. Authentication providers and
// the User Directory hold one of these and call Enqueue from inside their
// own transaction.
type Bus struct {
	q *db.Queries
}

func NewBus(q *db.Queries) *Bus {
	return &Bus{q: q}
}

// WithTx returns a Bus bound to tx, so Enqueue calls made through it land in
// the caller's transaction and vanish with it on rollback.
func (b *Bus) WithTx(tx pgx.Tx) *Bus {
	clone := *b
	clone.q = b.q.WithTx(tx)
	return &clone
}

// Enqueue inserts a job row. jobName follows the dotted event-key
// convention used throughout the spec (e.g. "auth.passwordBased.requestOtp").
func (b *Bus) Enqueue(ctx context.Context, jobName string, payload map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return apperr.Server("jobs.enqueue.marshal", err)
	}
	if _, err := b.q.EnqueueJob(ctx, jobName, raw); err != nil {
		return apperr.Server("jobs.enqueue.insert", fmt.Errorf("enqueue %q: %w", jobName, err))
	}
	return nil
}
