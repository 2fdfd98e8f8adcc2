package schedule

import (
	"sort"
	"time"

	"github.com/backflowhq/platform/services/scheduling-service/internal/model"
)

// OverlapGroup is a set of two or more non-cancelled appointments on one date
// whose service intervals intersect.
type OverlapGroup struct {
	Date         time.Time
	Appointments []model.Appointment
}

// OverCapacityDay flags a date carrying more non-cancelled appointments than
// the zone offers start hours.
type OverCapacityDay struct {
	Date     time.Time
	Zone     Zone
	Count    int
	Capacity int
}

// FindOverlaps groups appointments whose [start, end) intervals intersect,
// per date. Cancelled appointments never conflict. Groups are transitive: if
// A overlaps B and B overlaps C, all three land in one group.
func FindOverlaps(appts []model.Appointment) []OverlapGroup {
	byDate := groupActiveByDate(appts)

	var groups []OverlapGroup
	for _, date := range sortedDates(byDate) {
		day := byDate[date]
		sort.Slice(day, func(i, j int) bool {
			return day[i].StartAt().Before(day[j].StartAt())
		})

		var current []model.Appointment
		var currentEnd time.Time
		flush := func() {
			if len(current) > 1 {
				groups = append(groups, OverlapGroup{Date: day[0].ScheduledDate, Appointments: current})
			}
			current = nil
		}
		for _, a := range day {
			if len(current) > 0 && a.StartAt().Before(currentEnd) {
				current = append(current, a)
				if a.EndAt().After(currentEnd) {
					currentEnd = a.EndAt()
				}
				continue
			}
			flush()
			current = []model.Appointment{a}
			currentEnd = a.EndAt()
		}
		flush()
	}
	return groups
}

// FindOverCapacity flags dates whose booking count exceeds the number of
// allowed start hours for the date's zone.
func FindOverCapacity(appts []model.Appointment) []OverCapacityDay {
	byDate := groupActiveByDate(appts)

	var days []OverCapacityDay
	for _, date := range sortedDates(byDate) {
		day := byDate[date]
		d := day[0].ScheduledDate
		zone := ResolveZone(d)
		capacity := len(AllowedHours(zone, d))
		if len(day) > capacity {
			days = append(days, OverCapacityDay{
				Date:     d,
				Zone:     zone,
				Count:    len(day),
				Capacity: capacity,
			})
		}
	}
	return days
}

func groupActiveByDate(appts []model.Appointment) map[string][]model.Appointment {
	byDate := make(map[string][]model.Appointment)
	for _, a := range appts {
		if a.Status == model.StatusCancelled {
			continue
		}
		key := a.ScheduledDate.Format("2006-01-02")
		byDate[key] = append(byDate[key], a)
	}
	return byDate
}

func sortedDates(byDate map[string][]model.Appointment) []string {
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}
