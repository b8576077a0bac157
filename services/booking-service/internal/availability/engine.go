// Package availability decides which days and times can be booked. It is
// pure: callers pass the studio's weekly hours, agenda blocks and current
// appointments, and nothing here touches storage or the clock.
//
// Dates are "YYYY-MM-DD" and clocks "HH:MM", both zero-padded. Malformed
// input is never bookable.
package availability

import (
	"time"

	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/model"
)

const dateLayout = "2006-01-02"

// Verdict explains the outcome of Evaluate.
type Verdict int

const (
	Available Verdict = iota
	OutsideHours
	Blocked
	Taken
)

func (v Verdict) String() string {
	switch v {
	case Available:
		return "available"
	case OutsideHours:
		return "outside_hours"
	case Blocked:
		return "blocked"
	case Taken:
		return "taken"
	default:
		return "unknown"
	}
}

// AvailableDays lists the days of month, from fromDay to the end of the month,
// whose weekday is open and which no block covers. The result is ascending.
func AvailableDays(year int, month time.Month, fromDay int, hours []model.OperatingHours, blocks []model.AgendaBlock) []int {
	if month < time.January || month > time.December {
		return nil
	}
	if fromDay < 1 {
		fromDay = 1
	}
	last := daysIn(year, month)

	var days []int
	for d := fromDay; d <= last; d++ {
		civil := time.Date(year, month, d, 12, 0, 0, 0, time.UTC)
		oh, ok := dayHours(hours, civil.Weekday())
		if !ok || !oh.IsOpen {
			continue
		}
		if IsDateBlocked(civil.Format(dateLayout), blocks) {
			continue
		}
		days = append(days, d)
	}
	return days
}

// IsSlotBookable reports whether clock falls inside one of the open slots of
// date's weekday. Slots are half-open: the end clock itself is not bookable.
func IsSlotBookable(date, clock string, hours []model.OperatingHours) bool {
	day, ok := parseDate(date)
	if !ok {
		return false
	}
	at, ok := parseClock(clock)
	if !ok {
		return false
	}
	oh, ok := dayHours(hours, day.Weekday())
	if !ok || !oh.IsOpen {
		return false
	}
	for _, slot := range oh.Slots {
		start, okStart := parseClock(slot.Start)
		end, okEnd := parseClock(slot.End)
		if !okStart || !okEnd {
			continue
		}
		if start <= at && at < end {
			return true
		}
	}
	return false
}

// IsDateBlocked reports whether any block covers date, bounds included.
func IsDateBlocked(date string, blocks []model.AgendaBlock) bool {
	if _, ok := parseDate(date); !ok {
		return false
	}
	for _, b := range blocks {
		if b.StartDate <= date && date <= b.EndDate {
			return true
		}
	}
	return false
}

// CheckAvailability is the booking gate: the time must be inside the opening
// hours, the date must not be blocked and no other active appointment may hold
// the same date, time and service. excludeID lets a reschedule ignore the
// appointment being moved.
func CheckAvailability(date, clock, serviceID string, hours []model.OperatingHours, blocks []model.AgendaBlock, appts []model.Appointment, excludeID string) bool {
	return Evaluate(date, clock, serviceID, hours, blocks, appts, excludeID) == Available
}

// Evaluate runs the same checks as CheckAvailability, in the same order, and
// reports which one failed.
func Evaluate(date, clock, serviceID string, hours []model.OperatingHours, blocks []model.AgendaBlock, appts []model.Appointment, excludeID string) Verdict {
	if !IsSlotBookable(date, clock, hours) {
		return OutsideHours
	}
	if IsDateBlocked(date, blocks) {
		return Blocked
	}
	if isTaken(date, clock, serviceID, appts, excludeID) {
		return Taken
	}
	return Available
}

func isTaken(date, clock, serviceID string, appts []model.Appointment, excludeID string) bool {
	for _, a := range appts {
		if !a.Status.Active() {
			continue
		}
		if excludeID != "" && a.ID == excludeID {
			continue
		}
		if a.Date == date && a.Time == clock && a.ServiceID == serviceID {
			return true
		}
	}
	return false
}

func dayHours(hours []model.OperatingHours, wd time.Weekday) (model.OperatingHours, bool) {
	for _, h := range hours {
		if h.DayOfWeek == int(wd) {
			return h, true
		}
	}
	return model.OperatingHours{}, false
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 12, 0, 0, 0, time.UTC).Day()
}

// parseDate reads a canonical date at noon UTC, so the weekday does not depend
// on any time zone.
func parseDate(date string) (time.Time, bool) {
	if len(date) != len(dateLayout) {
		return time.Time{}, false
	}
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return time.Time{}, false
	}
	return d.Add(12 * time.Hour), true
}

// parseClock returns minutes since midnight for a zero-padded "HH:MM".
func parseClock(clock string) (int, bool) {
	if len(clock) != 5 || clock[2] != ':' {
		return 0, false
	}
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

func formatClock(minutes int) string {
	return time.Date(2000, 1, 1, minutes/60, minutes%60, 0, 0, time.UTC).Format("15:04")
}
