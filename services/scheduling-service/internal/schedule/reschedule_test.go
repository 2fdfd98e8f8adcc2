package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/backflowhq/platform/services/scheduling-service/internal/model"
)

func apptAt(start time.Time, status model.Status) model.Appointment {
	return model.Appointment{
		ID:            "appt-1",
		CompanyID:     "co-1",
		ScheduledDate: time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC),
		ScheduledTime: start.Format("15:04"),
		Status:        status,
	}
}

func TestCheckRescheduleEligibility_TerminalStatuses(t *testing.T) {
	now := time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC)
	newStart := now.Add(72 * time.Hour)

	for _, status := range []model.Status{model.StatusCompleted, model.StatusCancelled} {
		appt := apptAt(now.Add(100*time.Hour), status)
		err := CheckRescheduleEligibility(appt, now, newStart)
		var notOK *NotReschedulableError
		if !errors.As(err, &notOK) {
			t.Fatalf("status %s: expected NotReschedulableError, got %v", status, err)
		}
		if notOK.Status != status {
			t.Fatalf("got status %s", notOK.Status)
		}
	}
}

func TestCheckRescheduleEligibility_NoticeWindowBoundary(t *testing.T) {
	now := time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC)
	newStart := now.Add(96 * time.Hour)

	// 23h59m away: too late.
	appt := apptAt(now.Add(24*time.Hour-time.Minute), model.StatusScheduled)
	err := CheckRescheduleEligibility(appt, now, newStart)
	var late *TooLateError
	if !errors.As(err, &late) {
		t.Fatalf("23h59m: expected TooLateError, got %v", err)
	}
	if late.Remaining >= MinNoticeWindow {
		t.Fatalf("remaining %s not under the window", late.Remaining)
	}

	// 24h01m away: eligible.
	appt = apptAt(now.Add(24*time.Hour+time.Minute), model.StatusScheduled)
	if err := CheckRescheduleEligibility(appt, now, newStart); err != nil {
		t.Fatalf("24h01m: expected eligible, got %v", err)
	}
}

func TestCheckRescheduleEligibility_NewTimeMustBeFuture(t *testing.T) {
	now := time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC)
	appt := apptAt(now.Add(48*time.Hour), model.StatusScheduled)

	if err := CheckRescheduleEligibility(appt, now, now); !errors.Is(err, ErrNewTimeNotFuture) {
		t.Fatalf("newStart == now: got %v", err)
	}
	if err := CheckRescheduleEligibility(appt, now, now.Add(-time.Hour)); !errors.Is(err, ErrNewTimeNotFuture) {
		t.Fatalf("past newStart: got %v", err)
	}
	if err := CheckRescheduleEligibility(appt, now, now.Add(time.Minute)); err != nil {
		t.Fatalf("future newStart: got %v", err)
	}
}

func TestCheckRescheduleEligibility_InProgressInsideWindow(t *testing.T) {
	// An in-progress appointment has already started, so it is always inside
	// the notice window.
	now := time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC)
	appt := apptAt(now.Add(-30*time.Minute), model.StatusInProgress)
	err := CheckRescheduleEligibility(appt, now, now.Add(48*time.Hour))
	var late *TooLateError
	if !errors.As(err, &late) {
		t.Fatalf("expected TooLateError, got %v", err)
	}
}
