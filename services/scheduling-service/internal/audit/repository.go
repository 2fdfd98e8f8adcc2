// Package audit records the reschedule trail: every successful reschedule
// appends one immutable row linking the old and new slot and the acting party.
package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/backflowhq/platform/libs/db"
)

type Entry struct {
	ID            int64
	AppointmentID string
	CompanyID     string
	ActorID       string
	OldDate       time.Time
	OldTime       string
	NewDate       time.Time
	NewTime       string
	Reason        string
	CreatedAt     time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record appends the entry inside the caller's transaction so the audit row
// commits atomically with the reschedule write.
func (r *Repository) Record(ctx context.Context, tx pgx.Tx, e Entry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO scheduling_audit_log
			(appointment_id, company_id, actor_id, old_date, old_time, new_date, new_time, reason)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5::time, $6, $7::time, $8)
	`, e.AppointmentID, e.CompanyID, e.ActorID, e.OldDate, e.OldTime, e.NewDate, e.NewTime, e.Reason)
	return err
}

// ListWindow returns entries whose new date falls in [from, to], oldest first,
// for the compliance export.
func (r *Repository) ListWindow(ctx context.Context, companyID string, from, to time.Time) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id::text, company_id::text, COALESCE(actor_id::text, ''),
			old_date, to_char(old_time, 'HH24:MI'), new_date, to_char(new_time, 'HH24:MI'),
			COALESCE(reason, ''), created_at
		FROM scheduling_audit_log
		WHERE company_id = $1
			AND new_date >= $2
			AND new_date <= $3
		ORDER BY id ASC
	`, companyID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID,
			&e.AppointmentID,
			&e.CompanyID,
			&e.ActorID,
			&e.OldDate,
			&e.OldTime,
			&e.NewDate,
			&e.NewTime,
			&e.Reason,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}
