package model

import "time"

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status admits no further scheduling actions.
// Completed and cancelled appointments can never be rescheduled; cancellation
// itself is allowed from any non-terminal status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

const DefaultDurationMinutes = 60

// Appointment is a backflow test visit. Appointments are never hard-deleted;
// cancellation is a status transition.
type Appointment struct {
	ID              string
	CompanyID       string
	CustomerID      string
	CustomerEmail   string
	CustomerPhone   string
	DeviceID        string
	ScheduledDate   time.Time // calendar date, midnight UTC
	ScheduledTime   string    // "HH:MM", minute granularity
	DurationMinutes int
	Status          Status
	Notes           string
	CancelledAt     *time.Time
	CreatedAt       time.Time
}

// StartAt combines the calendar date and time-of-day into a UTC instant.
func (a Appointment) StartAt() time.Time {
	clock, err := time.Parse("15:04", a.ScheduledTime)
	if err != nil {
		return a.ScheduledDate
	}
	d := a.ScheduledDate
	return time.Date(d.Year(), d.Month(), d.Day(), clock.Hour(), clock.Minute(), 0, 0, time.UTC)
}

// EndAt is StartAt plus the estimated duration (default 60 minutes).
func (a Appointment) EndAt() time.Time {
	mins := a.DurationMinutes
	if mins <= 0 {
		mins = DefaultDurationMinutes
	}
	return a.StartAt().Add(time.Duration(mins) * time.Minute)
}
