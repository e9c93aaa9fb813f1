package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

func (q *Queries) GetManagementUserByExternalID(ctx context.Context, externalID string) (ManagementUser, error) {
	var m ManagementUser
	err := q.db.QueryRow(ctx, `SELECT id, external_id, created_at FROM management_users WHERE external_id = $1`, externalID).
		Scan(&m.ID, &m.ExternalID, &m.CreatedAt)
	return m, err
}

// CreateManagementUser inserts a management_users row whose id matches the
// transient users row already created for this elevated session, so the
// two can be swept together (spec §4.8 daily purge job).
func (q *Queries) CreateManagementUser(ctx context.Context, id pgtype.UUID, externalID string) (ManagementUser, error) {
	var m ManagementUser
	err := q.db.QueryRow(ctx, `
		INSERT INTO management_users (id, external_id) VALUES ($1, $2)
		RETURNING id, external_id, created_at
	`, id, externalID).Scan(&m.ID, &m.ExternalID, &m.CreatedAt)
	return m, err
}

func (q *Queries) DeleteManagementUser(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM management_users WHERE id = $1`, id)
	return err
}

// PurgedManagementUser identifies one swept row: id doubles as the
// backing transient user's id, externalID is retained so the caller can
// still purge the delivered-link chat thread after the row is gone.
type PurgedManagementUser struct {
	ID         pgtype.UUID
	ExternalID string
}

// SweepExpiredManagementUsers purges management_users rows whose elevated
// session window has lapsed and returns them so the caller can hard-delete
// the backing user (cascading to its sessions) and purge its chat thread
// (spec §4.8 "daily job deletes these transient users and purges the chat
// thread").
func (q *Queries) SweepExpiredManagementUsers(ctx context.Context, olderThanHours int) ([]PurgedManagementUser, error) {
	rows, err := q.db.Query(ctx, `
		DELETE FROM management_users WHERE created_at < now() - make_interval(hours => $1)
		RETURNING id, external_id
	`, olderThanHours)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var purged []PurgedManagementUser
	for rows.Next() {
		var p PurgedManagementUser
		if err := rows.Scan(&p.ID, &p.ExternalID); err != nil {
			return nil, err
		}
		purged = append(purged, p)
	}
	return purged, rows.Err()
}
