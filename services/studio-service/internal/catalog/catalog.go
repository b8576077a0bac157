// Package catalog validates studio input before it is stored.
package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joaocarlostuc75/ciliosdeluxo/services/studio-service/internal/model"
)

const DefaultDurationMinutes = 60

var (
	hoursPattern   = regexp.MustCompile(`(?i)(\d+)\s*h`)
	minutesPattern = regexp.MustCompile(`(?i)(\d+)\s*m`)
)

// ParseDurationToMinutes reads free-text durations such as "2h", "1h 30m" or
// "45min". Text without a recognisable amount counts as an hour.
func ParseDurationToMinutes(s string) int {
	total := 0
	if m := hoursPattern.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		total += h * 60
	}
	if m := minutesPattern.FindStringSubmatch(s); m != nil {
		mins, _ := strconv.Atoi(m[1])
		total += mins
	}
	if total <= 0 {
		return DefaultDurationMinutes
	}
	return total
}

var ErrInvalid = errors.New("invalid input")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// ValidateHours checks weekday numbers and slot clocks. Open days without
// slots are allowed.
func ValidateHours(days []model.OperatingHours) error {
	seen := map[int]bool{}
	for _, d := range days {
		if d.DayOfWeek < 0 || d.DayOfWeek > 6 {
			return invalid("day_of_week must be 0-6, got %d", d.DayOfWeek)
		}
		if seen[d.DayOfWeek] {
			return invalid("day_of_week %d listed twice", d.DayOfWeek)
		}
		seen[d.DayOfWeek] = true
		for _, s := range d.Slots {
			start, err := time.Parse("15:04", s.Start)
			if err != nil || len(s.Start) != 5 {
				return invalid("slot start %q is not HH:MM", s.Start)
			}
			end, err := time.Parse("15:04", s.End)
			if err != nil || len(s.End) != 5 {
				return invalid("slot end %q is not HH:MM", s.End)
			}
			if !start.Before(end) {
				return invalid("slot %s-%s must start before it ends", s.Start, s.End)
			}
		}
	}
	return nil
}

// NormalizeBlock validates the range and fills the default reason.
func NormalizeBlock(b model.AgendaBlock) (model.AgendaBlock, error) {
	b.StartDate = strings.TrimSpace(b.StartDate)
	b.EndDate = strings.TrimSpace(b.EndDate)
	start, err := time.Parse("2006-01-02", b.StartDate)
	if err != nil {
		return b, invalid("start_date %q is not YYYY-MM-DD", b.StartDate)
	}
	if b.EndDate == "" {
		b.EndDate = b.StartDate
	}
	end, err := time.Parse("2006-01-02", b.EndDate)
	if err != nil {
		return b, invalid("end_date %q is not YYYY-MM-DD", b.EndDate)
	}
	if end.Before(start) {
		return b, invalid("end_date must not be before start_date")
	}
	b.Reason = strings.TrimSpace(b.Reason)
	if b.Reason == "" {
		b.Reason = model.DefaultBlockReason
	}
	return b, nil
}

// NormalizeService trims text fields, derives DurationMinutes and requires a
// name. Price must already be set by the caller.
func NormalizeService(s model.Service) (model.Service, error) {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return s, invalid("name is required")
	}
	if s.Price < 0 {
		return s, invalid("price must not be negative")
	}
	s.Description = strings.TrimSpace(s.Description)
	s.LongDescription = strings.TrimSpace(s.LongDescription)
	s.Duration = strings.TrimSpace(s.Duration)
	s.Maintenance = strings.TrimSpace(s.Maintenance)
	s.ImageURL = strings.TrimSpace(s.ImageURL)
	s.DurationMinutes = ParseDurationToMinutes(s.Duration)
	s.PriceLabel = s.Price.String()
	return s, nil
}

func NormalizeClient(c model.Client) (model.Client, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Whatsapp = strings.TrimSpace(c.Whatsapp)
	c.Notes = strings.TrimSpace(c.Notes)
	if c.Name == "" || c.Whatsapp == "" {
		return c, invalid("name and whatsapp are required")
	}
	return c, nil
}

// FillWeek returns all seven weekdays; days missing from stored are closed.
func FillWeek(stored []model.OperatingHours) []model.OperatingHours {
	week := make([]model.OperatingHours, 7)
	for d := range week {
		week[d] = model.OperatingHours{DayOfWeek: d, Slots: []model.TimeRange{}}
	}
	for _, h := range stored {
		if h.DayOfWeek < 0 || h.DayOfWeek > 6 {
			continue
		}
		if h.Slots == nil {
			h.Slots = []model.TimeRange{}
		}
		week[h.DayOfWeek] = h
	}
	return week
}
