package storage

import (
	"context"

	"github.com/backflowhq/platform/libs/db"
)

// Notification is the delivery record for one message on one channel.
type Notification struct {
	AppointmentID string
	CompanyID     string
	EventType     string
	Channel       string
	Recipient     string
	Subject       string
	Body          string
	Status        string
	FailureReason string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications
			(appointment_id, company_id, event_type, channel, recipient, subject, body, status, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
	`, n.AppointmentID, n.CompanyID, n.EventType, n.Channel, n.Recipient, n.Subject, n.Body, n.Status, n.FailureReason)
	return err
}
