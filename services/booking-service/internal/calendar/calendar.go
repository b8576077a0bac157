// Package calendar normalises user supplied dates and clocks into the
// canonical "YYYY-MM-DD" and "HH:MM" forms.
package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

var (
	ErrInvalidDate  = errors.New("invalid date")
	ErrInvalidClock = errors.New("invalid time")
)

// NormalizeDate accepts "2025-06-05", "2025-6-5" or a bare day of month
// ("5"), which is resolved against now's year and month.
func NormalizeDate(raw string, now time.Time) (string, error) {
	return NormalizeDateIn(raw, now.Year(), now.Month())
}

// NormalizeDateIn is NormalizeDate with bare days resolved against year and
// month, the calendar page the day was picked from.
func NormalizeDateIn(raw string, year int, month time.Month) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidDate
	}

	if day, err := strconv.Atoi(raw); err == nil {
		if month < time.January || month > time.December || day < 1 || day > DaysIn(year, month) {
			return "", fmt.Errorf("%w: day %d out of range", ErrInvalidDate, day)
		}
		return time.Date(year, month, day, 12, 0, 0, 0, time.UTC).Format(DateLayout), nil
	}

	parts := strings.Split(raw, "-")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	y, errY := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	d, errD := strconv.Atoi(parts[2])
	if errY != nil || errM != nil || errD != nil || len(parts[0]) != 4 {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	if m < 1 || m > 12 || d < 1 || d > DaysIn(y, time.Month(m)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d), nil
}

// NormalizeClock pads "9:00" to "09:00" and rejects anything that is not a
// valid 24h clock.
func NormalizeClock(raw string) (string, error) {
	t, err := time.Parse(ClockLayout, strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}
	return t.Format(ClockLayout), nil
}

func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 12, 0, 0, 0, time.UTC).Day()
}

// At returns the instant of date and clock in loc.
func At(date, clock string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+ClockLayout, date+" "+clock, loc)
}

// ParseMonth reads "2025-06" or separate year and month query values.
func ParseMonth(yearRaw, monthRaw string) (int, time.Month, error) {
	if yearRaw == "" && strings.Contains(monthRaw, "-") {
		t, err := time.Parse("2006-01", monthRaw)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid month %q", monthRaw)
		}
		return t.Year(), t.Month(), nil
	}
	y, err := strconv.Atoi(yearRaw)
	if err != nil || y < 1970 || y > 9999 {
		return 0, 0, fmt.Errorf("invalid year %q", yearRaw)
	}
	m, err := strconv.Atoi(monthRaw)
	if err != nil || m < 1 || m > 12 {
		return 0, 0, fmt.Errorf("invalid month %q", monthRaw)
	}
	return y, time.Month(m), nil
}
