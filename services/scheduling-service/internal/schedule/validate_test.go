package schedule

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeConflicts marks occupied slots by "YYYY-MM-DD HH:MM" -> appointment ids.
type fakeConflicts struct {
	booked map[string][]string
	calls  int
}

func slotKey(d time.Time, c Clock) string {
	return d.Format("2006-01-02") + " " + c.String()
}

func (f *fakeConflicts) CountAtSlot(_ context.Context, _ string, d time.Time, c Clock, excludeID string) (int, error) {
	f.calls++
	n := 0
	for _, id := range f.booked[slotKey(d, c)] {
		if excludeID != "" && id == excludeID {
			continue
		}
		n++
	}
	return n, nil
}

func (f *fakeConflicts) book(d time.Time, c Clock, id string) {
	if f.booked == nil {
		f.booked = map[string][]string{}
	}
	key := slotKey(d, c)
	f.booked[key] = append(f.booked[key], id)
}

func TestValidateSlot_WednesdayEvening(t *testing.T) {
	v := NewValidator(&fakeConflicts{})
	wednesday := date(2026, time.September, 2)

	if zone := ResolveZone(wednesday); zone != ZoneSouth {
		t.Fatalf("expected South, got %s", zone)
	}
	err := v.ValidateSlot(context.Background(), "co-1", wednesday, Clock{Hour: 18}, ZoneSouth, "")
	if err != nil {
		t.Fatalf("18:00 on a Wednesday should pass, got %v", err)
	}
}

func TestValidateSlot_WednesdayMorningRejected(t *testing.T) {
	v := NewValidator(&fakeConflicts{})
	wednesday := date(2026, time.September, 2)

	err := v.ValidateSlot(context.Background(), "co-1", wednesday, Clock{Hour: 10}, ZoneSouth, "")
	var outside *OutsideHoursError
	if !errors.As(err, &outside) {
		t.Fatalf("expected OutsideHoursError, got %v", err)
	}
	if outside.Zone != ZoneSouth {
		t.Fatalf("got zone %s", outside.Zone)
	}
	if outside.Window != "5:00 PM - 10:00 PM" {
		t.Fatalf("got window %q", outside.Window)
	}
	if len(outside.ValidHours) != 5 || outside.ValidHours[0] != 17 || outside.ValidHours[4] != 21 {
		t.Fatalf("got valid hours %v, want 17..21", outside.ValidHours)
	}
}

func TestValidateSlot_SaturdayMorning(t *testing.T) {
	v := NewValidator(&fakeConflicts{})
	saturday := date(2026, time.September, 5)

	if zone := ResolveZone(saturday); zone != ZoneNorth {
		t.Fatalf("expected North, got %s", zone)
	}
	err := v.ValidateSlot(context.Background(), "co-1", saturday, Clock{Hour: 8}, ZoneNorth, "")
	if err != nil {
		t.Fatalf("08:00 on a Saturday should pass, got %v", err)
	}
}

func TestValidateSlot_Conflict(t *testing.T) {
	fake := &fakeConflicts{}
	wednesday := date(2026, time.September, 2)
	fake.book(wednesday, Clock{Hour: 18}, "appt-1")
	v := NewValidator(fake)

	err := v.ValidateSlot(context.Background(), "co-1", wednesday, Clock{Hour: 18}, ZoneSouth, "")
	var taken *SlotTakenError
	if !errors.As(err, &taken) {
		t.Fatalf("expected SlotTakenError, got %v", err)
	}
	if taken.Conflicts != 1 {
		t.Fatalf("got %d conflicts", taken.Conflicts)
	}
	if len(taken.Alternatives) == 0 || len(taken.Alternatives) > 3 {
		t.Fatalf("expected 1..3 alternatives, got %d", len(taken.Alternatives))
	}
	for _, alt := range taken.Alternatives {
		if alt.Date.Equal(wednesday) && alt.Clock.Hour == 18 {
			t.Fatalf("suggested the conflicting slot itself")
		}
	}
}

func TestValidateSlot_ExcludeSelf(t *testing.T) {
	fake := &fakeConflicts{}
	wednesday := date(2026, time.September, 2)
	fake.book(wednesday, Clock{Hour: 18}, "appt-1")
	v := NewValidator(fake)

	// Rescheduling appt-1 onto its own slot does not self-conflict.
	if err := v.ValidateSlot(context.Background(), "co-1", wednesday, Clock{Hour: 18}, ZoneSouth, "appt-1"); err != nil {
		t.Fatalf("excluding own id should pass, got %v", err)
	}
	// Excluding some other id still conflicts.
	err := v.ValidateSlot(context.Background(), "co-1", wednesday, Clock{Hour: 18}, ZoneSouth, "appt-2")
	var taken *SlotTakenError
	if !errors.As(err, &taken) {
		t.Fatalf("expected SlotTakenError, got %v", err)
	}
}

func TestValidateSlot_DoubleBookedSlotStillConflictsExcludingOne(t *testing.T) {
	fake := &fakeConflicts{}
	wednesday := date(2026, time.September, 2)
	fake.book(wednesday, Clock{Hour: 18}, "appt-1")
	fake.book(wednesday, Clock{Hour: 18}, "appt-2")
	v := NewValidator(fake)

	// Both occupants count when neither is excluded.
	err := v.ValidateSlot(context.Background(), "co-1", wednesday, Clock{Hour: 18}, ZoneSouth, "")
	var taken *SlotTakenError
	if !errors.As(err, &taken) {
		t.Fatalf("expected SlotTakenError, got %v", err)
	}
	if taken.Conflicts != 2 {
		t.Fatalf("got %d conflicts, want 2", taken.Conflicts)
	}

	// Excluding one of the two still rejects: the other occupies the slot.
	err = v.ValidateSlot(context.Background(), "co-1", wednesday, Clock{Hour: 18}, ZoneSouth, "appt-1")
	if !errors.As(err, &taken) {
		t.Fatalf("expected SlotTakenError with one occupant left, got %v", err)
	}
	if taken.Conflicts != 1 {
		t.Fatalf("got %d conflicts, want 1", taken.Conflicts)
	}
}

func TestValidateSlot_Idempotent(t *testing.T) {
	fake := &fakeConflicts{}
	wednesday := date(2026, time.September, 2)
	fake.book(wednesday, Clock{Hour: 17}, "appt-1")
	v := NewValidator(fake)

	check := func() error {
		return v.ValidateSlot(context.Background(), "co-1", wednesday, Clock{Hour: 18}, ZoneSouth, "")
	}
	first, second := check(), check()
	if first != nil || second != nil {
		t.Fatalf("same unchanged slot must validate the same twice: %v vs %v", first, second)
	}
}

func TestSuggestAlternatives_SameDayFirst(t *testing.T) {
	fake := &fakeConflicts{}
	wednesday := date(2026, time.September, 2)
	fake.book(wednesday, Clock{Hour: 17}, "a")
	v := NewValidator(fake)

	alts, err := v.SuggestAlternatives(context.Background(), "co-1", wednesday, ZoneSouth, 3)
	if err != nil {
		t.Fatalf("SuggestAlternatives: %v", err)
	}
	if len(alts) != 3 {
		t.Fatalf("got %d alternatives, want 3", len(alts))
	}
	// 17 is booked, so 18, 19, 20 on the same day.
	for i, wantHour := range []int{18, 19, 20} {
		if !alts[i].Date.Equal(wednesday) || alts[i].Clock.Hour != wantHour {
			t.Fatalf("alt %d: got %s %s, want %s %02d:00",
				i, alts[i].Date.Format("2006-01-02"), alts[i].Clock, wednesday.Format("2006-01-02"), wantHour)
		}
	}
}

func TestSuggestAlternatives_FullyBookedDayFallsForward(t *testing.T) {
	fake := &fakeConflicts{}
	wednesday := date(2026, time.September, 2)
	for h := 17; h <= 21; h++ {
		fake.book(wednesday, Clock{Hour: h}, "x")
	}
	v := NewValidator(fake)

	alts, err := v.SuggestAlternatives(context.Background(), "co-1", wednesday, ZoneSouth, 3)
	if err != nil {
		t.Fatalf("SuggestAlternatives: %v", err)
	}
	if len(alts) != 3 {
		t.Fatalf("got %d alternatives, want 3", len(alts))
	}
	// Thursday and Friday are weekdays (first two hours 17, 18); only their
	// first two allowed hours are probed per day.
	thursday := wednesday.AddDate(0, 0, 1)
	want := []Slot{
		{Date: thursday, Clock: Clock{Hour: 17}},
		{Date: thursday, Clock: Clock{Hour: 18}},
		{Date: wednesday.AddDate(0, 0, 2), Clock: Clock{Hour: 17}},
	}
	for i := range want {
		if !alts[i].Date.Equal(want[i].Date) || alts[i].Clock != want[i].Clock {
			t.Fatalf("alt %d: got %s %s, want %s %s",
				i, alts[i].Date.Format("2006-01-02"), alts[i].Clock, want[i].Date.Format("2006-01-02"), want[i].Clock)
		}
	}
}

func TestSuggestAlternatives_AscendingDateOrder(t *testing.T) {
	fake := &fakeConflicts{}
	wednesday := date(2026, time.September, 2)
	// Book everything for 8 days so the scan budget runs dry.
	for i := 0; i <= 8; i++ {
		d := wednesday.AddDate(0, 0, i)
		for h := 0; h < 24; h++ {
			fake.book(d, Clock{Hour: h}, "x")
		}
	}
	v := NewValidator(fake)

	alts, err := v.SuggestAlternatives(context.Background(), "co-1", wednesday, ZoneSouth, 3)
	if err != nil {
		t.Fatalf("SuggestAlternatives: %v", err)
	}
	if len(alts) != 0 {
		t.Fatalf("everything booked inside the budget, got %d alternatives", len(alts))
	}
	// Budget: 5 same-day hours + 2 hours for each of 7 subsequent days.
	if fake.calls != 5+7*2 {
		t.Fatalf("scan budget exceeded: %d conflict queries", fake.calls)
	}
}
