package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/backflowhq/platform/libs/db"
	"github.com/backflowhq/platform/services/scheduling-service/internal/model"
	"github.com/backflowhq/platform/services/scheduling-service/internal/schedule"
)

const apptColumns = `id::text, company_id::text, customer_id::text,
	COALESCE(customer_email, ''), COALESCE(customer_phone, ''), device_id::text,
	scheduled_date, to_char(scheduled_time, 'HH24:MI'), duration_minutes, status,
	COALESCE(notes, ''), cancelled_at, created_at`

type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

func (r *AppointmentRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *AppointmentRepository) Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error) {
	duration := appt.DurationMinutes
	if duration <= 0 {
		duration = model.DefaultDurationMinutes
	}
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(company_id, customer_id, customer_email, customer_phone, device_id,
			 scheduled_date, scheduled_time, duration_minutes, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7::time, $8, $9, $10)
		RETURNING id
	`, appt.CompanyID, appt.CustomerID, appt.CustomerEmail, appt.CustomerPhone, appt.DeviceID,
		appt.ScheduledDate, appt.ScheduledTime, duration, string(appt.Status), appt.Notes).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *AppointmentRepository) Get(ctx context.Context, companyID, appointmentID string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE id = $1 AND company_id = $2
	`, appointmentID, companyID)
	return scanAppointment(row)
}

// GetForUpdate row-locks the appointment so concurrent reschedules of the
// same appointment serialize.
func (r *AppointmentRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, companyID, appointmentID string) (model.Appointment, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE id = $1 AND company_id = $2
		FOR UPDATE
	`, appointmentID, companyID)
	return scanAppointment(row)
}

// Reschedule moves the appointment and forces status back to scheduled.
// Eligibility and slot validation happen before this write.
func (r *AppointmentRepository) Reschedule(ctx context.Context, tx pgx.Tx, companyID, appointmentID string, newDate time.Time, newTime string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET scheduled_date = $3,
			scheduled_time = $4::time,
			status = 'scheduled',
			updated_at = now()
		WHERE id = $1 AND company_id = $2
	`, appointmentID, companyID, newDate, newTime)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *AppointmentRepository) Cancel(ctx context.Context, tx pgx.Tx, companyID, appointmentID, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			notes = CASE WHEN $3 = '' THEN notes ELSE trim(both E'\n' FROM COALESCE(notes, '') || E'\n' || 'cancelled: ' || $3) END,
			updated_at = now()
		WHERE id = $1 AND company_id = $2
		RETURNING cancelled_at
	`, appointmentID, companyID, reason).Scan(&cancelledAt)
	return cancelledAt, err
}

// Shorten reduces the estimated duration, a conflict-resolution action.
func (r *AppointmentRepository) Shorten(ctx context.Context, tx pgx.Tx, companyID, appointmentID string, durationMinutes int) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET duration_minutes = $3,
			updated_at = now()
		WHERE id = $1 AND company_id = $2 AND status <> 'cancelled'
	`, appointmentID, companyID, durationMinutes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// CountAtSlot implements schedule.ConflictChecker: non-cancelled appointments
// at the exact same date and time, minus the excluded id.
func (r *AppointmentRepository) CountAtSlot(ctx context.Context, companyID string, date time.Time, clock schedule.Clock, excludeID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE company_id = $1
			AND scheduled_date = $2
			AND scheduled_time = $3::time
			AND status <> 'cancelled'
			AND ($4 = '' OR id::text <> $4)
	`, companyID, date, clock.String(), excludeID).Scan(&n)
	return n, err
}

func (r *AppointmentRepository) ListByCompany(ctx context.Context, companyID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE company_id = $1
		ORDER BY scheduled_date DESC, scheduled_time DESC
		LIMIT $2
	`, companyID, limit)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// ListWindow returns every appointment in [from, to] for the conflict report
// and compliance export, cancelled ones included so reports can show them.
func (r *AppointmentRepository) ListWindow(ctx context.Context, companyID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE company_id = $1
			AND scheduled_date >= $2
			AND scheduled_date <= $3
		ORDER BY scheduled_date ASC, scheduled_time ASC
	`, companyID, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// CountScheduledInMonth counts non-cancelled appointments whose date falls in
// [monthStart, monthEnd), for entitlement enforcement.
func (r *AppointmentRepository) CountScheduledInMonth(ctx context.Context, tx pgx.Tx, companyID string, monthStart, monthEnd time.Time) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE company_id = $1
			AND scheduled_date >= $2
			AND scheduled_date < $3
			AND status <> 'cancelled'
	`, companyID, monthStart, monthEnd).Scan(&n)
	return n, err
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var status string
	var cancelledAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.CompanyID,
		&appt.CustomerID,
		&appt.CustomerEmail,
		&appt.CustomerPhone,
		&appt.DeviceID,
		&appt.ScheduledDate,
		&appt.ScheduledTime,
		&appt.DurationMinutes,
		&status,
		&appt.Notes,
		&cancelledAt,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.Status(status)
	appt.CancelledAt = cancelledAt
	appt.ScheduledDate = appt.ScheduledDate.UTC()
	return appt, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// IsNotFound reports a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsConflict reports a storage-level slot collision: the partial unique index
// on (company_id, scheduled_date, scheduled_time) closes the read-then-write
// race between concurrent bookings of the same slot.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "23505" || pgErr.Code == "23P01")
}
