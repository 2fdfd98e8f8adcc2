package schedule

import (
	"context"
	"fmt"
	"time"
)

// Slot is a candidate (date, time) pair for an appointment.
type Slot struct {
	Date  time.Time
	Clock Clock
}

// ConflictChecker answers whether a slot is already occupied. Implemented by
// the appointment repository; a non-cancelled appointment at the exact same
// date and time counts as a conflict.
type ConflictChecker interface {
	CountAtSlot(ctx context.Context, companyID string, date time.Time, clock Clock, excludeID string) (int, error)
}

// OutsideHoursError rejects a slot whose start hour is not offered by the
// zone on that date. It carries enough context for the caller to re-render
// the booking form with corrected constraints.
type OutsideHoursError struct {
	Zone       Zone
	Window     string
	ValidHours []int
}

func (e *OutsideHoursError) Error() string {
	return fmt.Sprintf("outside business hours for zone %s (%s)", e.Zone, e.Window)
}

// SlotTakenError rejects a slot already occupied by another non-cancelled
// appointment, carrying up to three free alternatives.
type SlotTakenError struct {
	Slot         Slot
	Conflicts    int
	Alternatives []Slot
}

func (e *SlotTakenError) Error() string {
	return fmt.Sprintf("slot %s %s is unavailable (%d existing)", e.Slot.Date.Format("2006-01-02"), e.Slot.Clock, e.Conflicts)
}

// Validator decides whether a proposed slot is bookable. It is stateless;
// all persistence goes through the ConflictChecker.
type Validator struct {
	conflicts ConflictChecker
}

func NewValidator(conflicts ConflictChecker) *Validator {
	return &Validator{conflicts: conflicts}
}

// ValidateSlot checks the proposed slot against the zone's business hours and
// then against existing bookings. excludeID exempts an appointment from the
// conflict scan so a reschedule does not collide with its own prior slot.
// Validation performs no writes; failures are *OutsideHoursError or
// *SlotTakenError, anything else is a storage error.
func (v *Validator) ValidateSlot(ctx context.Context, companyID string, date time.Time, clock Clock, zone Zone, excludeID string) error {
	hours := AllowedHours(zone, date)
	if !containsHour(hours, clock.Hour) {
		return &OutsideHoursError{
			Zone:       zone,
			Window:     HoursWindow(zone, date),
			ValidHours: hours,
		}
	}

	n, err := v.conflicts.CountAtSlot(ctx, companyID, date, clock, excludeID)
	if err != nil {
		return err
	}
	if n > 0 {
		alts, altErr := v.SuggestAlternatives(ctx, companyID, date, zone, 3)
		if altErr != nil {
			// Suggestions are a courtesy; the rejection stands without them.
			alts = nil
		}
		return &SlotTakenError{
			Slot:         Slot{Date: date, Clock: clock},
			Conflicts:    n,
			Alternatives: alts,
		}
	}
	return nil
}

// suggestDayBudget bounds the forward scan; extraHoursPerDay bounds the
// conflict queries issued per subsequent day.
const (
	suggestDayBudget = 7
	extraHoursPerDay = 2
)

// SuggestAlternatives returns up to limit free slots near the requested date.
// It scans the requested date's allowed hours in ascending order, then walks
// forward up to seven days testing only the first two allowed hours of each
// day. Best-effort: it is not guaranteed to find the earliest free slot
// beyond that budget.
func (v *Validator) SuggestAlternatives(ctx context.Context, companyID string, date time.Time, zone Zone, limit int) ([]Slot, error) {
	if limit <= 0 {
		limit = 3
	}
	var out []Slot

	collect := func(day time.Time, hours []int) error {
		for _, h := range hours {
			if len(out) >= limit {
				return nil
			}
			clock := Clock{Hour: h}
			n, err := v.conflicts.CountAtSlot(ctx, companyID, day, clock, "")
			if err != nil {
				return err
			}
			if n == 0 {
				out = append(out, Slot{Date: day, Clock: clock})
			}
		}
		return nil
	}

	if err := collect(date, AllowedHours(zone, date)); err != nil {
		return nil, err
	}

	for i := 1; i <= suggestDayBudget && len(out) < limit; i++ {
		day := date.AddDate(0, 0, i)
		// Subsequent days classify on their own weekday.
		hours := AllowedHours(ResolveZone(day), day)
		if len(hours) > extraHoursPerDay {
			hours = hours[:extraHoursPerDay]
		}
		if err := collect(day, hours); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func containsHour(hours []int, h int) bool {
	for _, hour := range hours {
		if hour == h {
			return true
		}
	}
	return false
}
