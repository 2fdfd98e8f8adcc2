package schedule

import (
	"testing"
	"time"

	"github.com/backflowhq/platform/services/scheduling-service/internal/model"
)

func booking(id string, day time.Time, clock string, durationMins int, status model.Status) model.Appointment {
	return model.Appointment{
		ID:              id,
		CompanyID:       "co-1",
		ScheduledDate:   day,
		ScheduledTime:   clock,
		DurationMinutes: durationMins,
		Status:          status,
	}
}

func TestFindOverlaps(t *testing.T) {
	wednesday := date(2026, time.September, 2)
	thursday := date(2026, time.September, 3)

	appts := []model.Appointment{
		booking("a", wednesday, "17:00", 90, model.StatusScheduled),
		booking("b", wednesday, "18:00", 60, model.StatusScheduled), // overlaps a (17:00+90m = 18:30)
		booking("c", wednesday, "19:00", 60, model.StatusScheduled), // clear of b? b ends 19:00, half-open: no overlap
		booking("d", thursday, "17:00", 60, model.StatusScheduled),
		booking("e", thursday, "17:00", 60, model.StatusCancelled), // cancelled never conflicts
	}

	groups := FindOverlaps(appts)
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	g := groups[0]
	if !g.Date.Equal(wednesday) {
		t.Fatalf("group date %s", g.Date.Format("2006-01-02"))
	}
	if len(g.Appointments) != 2 || g.Appointments[0].ID != "a" || g.Appointments[1].ID != "b" {
		t.Fatalf("unexpected group members: %+v", g.Appointments)
	}
}

func TestFindOverlaps_TransitiveChain(t *testing.T) {
	saturday := date(2026, time.September, 5)
	appts := []model.Appointment{
		booking("a", saturday, "08:00", 90, model.StatusScheduled),
		booking("b", saturday, "09:00", 90, model.StatusScheduled),
		booking("c", saturday, "10:00", 60, model.StatusScheduled),
	}
	groups := FindOverlaps(appts)
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	if len(groups[0].Appointments) != 3 {
		t.Fatalf("chain a-b-c should form one group, got %d members", len(groups[0].Appointments))
	}
}

func TestFindOverlaps_SameSlotDefaultDuration(t *testing.T) {
	monday := date(2026, time.September, 7)
	appts := []model.Appointment{
		booking("a", monday, "17:00", 0, model.StatusScheduled),
		booking("b", monday, "17:00", 0, model.StatusScheduled),
	}
	groups := FindOverlaps(appts)
	if len(groups) != 1 || len(groups[0].Appointments) != 2 {
		t.Fatalf("identical slots must overlap: %+v", groups)
	}
}

func TestFindOverCapacity(t *testing.T) {
	monday := date(2026, time.September, 7) // weekday: 5 allowed hours
	var appts []model.Appointment
	for i := 0; i < 6; i++ {
		appts = append(appts, booking(string(rune('a'+i)), monday, "17:00", 60, model.StatusScheduled))
	}
	// A cancelled extra does not count.
	appts = append(appts, booking("z", monday, "18:00", 60, model.StatusCancelled))

	days := FindOverCapacity(appts)
	if len(days) != 1 {
		t.Fatalf("got %d over-capacity days, want 1", len(days))
	}
	d := days[0]
	if d.Count != 6 || d.Capacity != 5 || d.Zone != ZoneNorth {
		t.Fatalf("unexpected report: %+v", d)
	}
}

func TestFindOverCapacity_AtCapacityIsFine(t *testing.T) {
	monday := date(2026, time.September, 7)
	var appts []model.Appointment
	for i := 0; i < 5; i++ {
		appts = append(appts, booking(string(rune('a'+i)), monday, "17:00", 60, model.StatusScheduled))
	}
	if days := FindOverCapacity(appts); len(days) != 0 {
		t.Fatalf("exactly at capacity should not flag: %+v", days)
	}
}
