package schedule

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestResolveZone_PartitionsWeek(t *testing.T) {
	// One full week starting Sunday 2026-09-06.
	start := date(2026, time.September, 6)
	if start.Weekday() != time.Sunday {
		t.Fatalf("fixture drift: %s is %s, want Sunday", start.Format("2006-01-02"), start.Weekday())
	}

	want := map[time.Weekday]Zone{
		time.Sunday:    ZoneNorth,
		time.Monday:    ZoneNorth,
		time.Tuesday:   ZoneNorth,
		time.Wednesday: ZoneSouth,
		time.Thursday:  ZoneSouth,
		time.Friday:    ZoneSouth,
		time.Saturday:  ZoneNorth,
	}

	for i := 0; i < 7; i++ {
		d := start.AddDate(0, 0, i)
		zone := ResolveZone(d)
		if zone != want[d.Weekday()] {
			t.Errorf("%s (%s): got zone %s, want %s", d.Format("2006-01-02"), d.Weekday(), zone, want[d.Weekday()])
		}
		// Exactly one zone serves each date.
		if ZoneServes(ZoneNorth, d) == ZoneServes(ZoneSouth, d) {
			t.Errorf("%s: expected exactly one serving zone", d.Format("2006-01-02"))
		}
	}
}

func TestAllowedHours(t *testing.T) {
	tests := []struct {
		name  string
		date  time.Time
		zone  Zone
		first int
		last  int
		count int
	}{
		{"saturday north", date(2026, time.September, 5), ZoneNorth, 7, 18, 12},
		{"sunday north", date(2026, time.September, 6), ZoneNorth, 7, 18, 12},
		{"monday north", date(2026, time.September, 7), ZoneNorth, 17, 21, 5},
		{"wednesday south", date(2026, time.September, 2), ZoneSouth, 17, 21, 5},
		{"friday south", date(2026, time.September, 4), ZoneSouth, 17, 21, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hours := AllowedHours(tt.zone, tt.date)
			if len(hours) != tt.count {
				t.Fatalf("got %d hours, want %d", len(hours), tt.count)
			}
			if hours[0] != tt.first || hours[len(hours)-1] != tt.last {
				t.Fatalf("got range %d..%d, want %d..%d", hours[0], hours[len(hours)-1], tt.first, tt.last)
			}
		})
	}
}

func TestAllowedHours_NonEmptyForResolvedZone(t *testing.T) {
	start := date(2026, time.September, 6)
	for i := 0; i < 7; i++ {
		d := start.AddDate(0, 0, i)
		if len(AllowedHours(ResolveZone(d), d)) == 0 {
			t.Errorf("%s: allowed hours empty for resolved zone", d.Format("2006-01-02"))
		}
	}
}

func TestAllowedHours_ZoneDayMismatchIsEmpty(t *testing.T) {
	wednesday := date(2026, time.September, 2)
	if hours := AllowedHours(ZoneNorth, wednesday); len(hours) != 0 {
		t.Fatalf("North does not serve Wednesday, got hours %v", hours)
	}
	saturday := date(2026, time.September, 5)
	if hours := AllowedHours(ZoneSouth, saturday); len(hours) != 0 {
		t.Fatalf("South does not serve Saturday, got hours %v", hours)
	}
}

func TestHoursWindow(t *testing.T) {
	if got := HoursWindow(ZoneNorth, date(2026, time.September, 5)); got != "7:00 AM - 7:00 PM" {
		t.Fatalf("weekend window: got %q", got)
	}
	if got := HoursWindow(ZoneSouth, date(2026, time.September, 2)); got != "5:00 PM - 10:00 PM" {
		t.Fatalf("weekday window: got %q", got)
	}
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("18:30")
	if err != nil {
		t.Fatalf("ParseClock: %v", err)
	}
	if c.Hour != 18 || c.Minute != 30 {
		t.Fatalf("got %+v", c)
	}
	if c.String() != "18:30" {
		t.Fatalf("String: got %q", c.String())
	}

	for _, bad := range []string{"", "25:00", "9am", "18:30:00", "18-30"} {
		if _, err := ParseClock(bad); err == nil {
			t.Errorf("ParseClock(%q): expected error", bad)
		}
	}
}

func TestClockAt(t *testing.T) {
	d := date(2026, time.September, 2)
	at := Clock{Hour: 18, Minute: 15}.At(d)
	want := time.Date(2026, time.September, 2, 18, 15, 0, 0, time.UTC)
	if !at.Equal(want) {
		t.Fatalf("got %s, want %s", at, want)
	}
}
