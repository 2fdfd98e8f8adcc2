// Package schedule implements the slot validation rules for backflow test
// appointments: service zones derived from the day of week, zone business
// hours, exact-slot conflict checks, alternative-slot suggestion, and the
// reschedule eligibility window.
package schedule

import (
	"fmt"
	"time"
)

// Zone partitions the service area by day of week. The mapping is fixed and
// total: every weekday belongs to exactly one zone.
type Zone string

const (
	ZoneNorth Zone = "North"
	ZoneSouth Zone = "South"
)

// ResolveZone classifies a date: Sunday, Monday, Tuesday, and Saturday are
// North days; Wednesday through Friday are South days.
func ResolveZone(date time.Time) Zone {
	switch date.Weekday() {
	case time.Wednesday, time.Thursday, time.Friday:
		return ZoneSouth
	default:
		return ZoneNorth
	}
}

// ZoneServes reports whether the zone offers appointments on the date's weekday.
func ZoneServes(zone Zone, date time.Time) bool {
	return ResolveZone(date) == zone
}

func isWeekend(date time.Time) bool {
	wd := date.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// AllowedHours returns the valid appointment start hours for a zone on a date.
// Weekend days run 7:00 AM through the 6 PM hour; weekdays run 5 PM through
// the 9 PM hour. If the zone does not serve the date's weekday the result is
// empty. That branch is unreachable for zones produced by ResolveZone, but
// future zone definitions may decouple the two, so it stays.
func AllowedHours(zone Zone, date time.Time) []int {
	if !ZoneServes(zone, date) {
		return nil
	}
	if isWeekend(date) {
		return hourRange(7, 18)
	}
	return hourRange(17, 21)
}

// HoursWindow renders the service window for error payloads and UI remedies.
func HoursWindow(zone Zone, date time.Time) string {
	if !ZoneServes(zone, date) {
		return fmt.Sprintf("no %s zone service on %s", zone, date.Weekday())
	}
	if isWeekend(date) {
		return "7:00 AM - 7:00 PM"
	}
	return "5:00 PM - 10:00 PM"
}

func hourRange(from, to int) []int {
	hours := make([]int, 0, to-from+1)
	for h := from; h <= to; h++ {
		hours = append(hours, h)
	}
	return hours
}

// Clock is a minute-granularity time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" (24-hour).
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// At anchors the clock on a calendar date in UTC.
func (c Clock) At(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour, c.Minute, 0, 0, time.UTC)
}

// ParseDate parses a "YYYY-MM-DD" calendar date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return d, nil
}
