package availability

import (
	"sort"
	"time"

	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/model"
)

// BookableTimes lists the start times on date that pass CheckAvailability
// for serviceID. Candidates start at each slot's opening clock and advance by
// step while they stay before the slot's end. Times at or before now are
// skipped; now's location is the studio's time zone.
func BookableTimes(date, serviceID string, hours []model.OperatingHours, blocks []model.AgendaBlock, appts []model.Appointment, step time.Duration, now time.Time) []string {
	if step < time.Minute {
		return nil
	}
	day, ok := parseDate(date)
	if !ok {
		return nil
	}
	oh, ok := dayHours(hours, day.Weekday())
	if !ok || !oh.IsOpen || IsDateBlocked(date, blocks) {
		return nil
	}

	loc := now.Location()
	stepMin := int(step / time.Minute)

	seen := map[int]bool{}
	var starts []int
	for _, slot := range oh.Slots {
		start, okStart := parseClock(slot.Start)
		end, okEnd := parseClock(slot.End)
		if !okStart || !okEnd || start >= end {
			continue
		}
		for m := start; m < end; m += stepMin {
			if seen[m] {
				continue
			}
			seen[m] = true
			if !time.Date(day.Year(), day.Month(), day.Day(), m/60, m%60, 0, 0, loc).After(now) {
				continue
			}
			starts = append(starts, m)
		}
	}
	sort.Ints(starts)

	times := make([]string, 0, len(starts))
	for _, m := range starts {
		clock := formatClock(m)
		if isTaken(date, clock, serviceID, appts, "") {
			continue
		}
		times = append(times, clock)
	}
	return times
}
