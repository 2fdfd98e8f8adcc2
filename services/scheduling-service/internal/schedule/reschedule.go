package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/backflowhq/platform/services/scheduling-service/internal/model"
)

// MinNoticeWindow is the minimum lead time before an appointment's current
// start for it to be reschedulable.
const MinNoticeWindow = 24 * time.Hour

// NotReschedulableError rejects reschedules of terminal appointments.
type NotReschedulableError struct {
	Status model.Status
}

func (e *NotReschedulableError) Error() string {
	return fmt.Sprintf("appointment with status %q cannot be rescheduled", e.Status)
}

// TooLateError rejects reschedules inside the notice window, reporting how
// much lead time remains before the current start.
type TooLateError struct {
	Remaining time.Duration
}

func (e *TooLateError) Error() string {
	return fmt.Sprintf("too late to reschedule: %.1f hours until appointment, %d required", e.Remaining.Hours(), int(MinNoticeWindow.Hours()))
}

// ErrNewTimeNotFuture rejects a proposed start that is not strictly after now.
var ErrNewTimeNotFuture = errors.New("new appointment time must be in the future")

// CheckRescheduleEligibility applies the reschedule business rules in order:
// terminal status, minimum notice against the current start, and a
// future-dated target. It never touches storage.
func CheckRescheduleEligibility(appt model.Appointment, now, newStart time.Time) error {
	if appt.Status.Terminal() {
		return &NotReschedulableError{Status: appt.Status}
	}
	remaining := appt.StartAt().Sub(now)
	if remaining < MinNoticeWindow {
		return &TooLateError{Remaining: remaining}
	}
	if !newStart.After(now) {
		return ErrNewTimeNotFuture
	}
	return nil
}
