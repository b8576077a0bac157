package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/availability"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/calendar"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/model"
)

// AvailableDays lists the bookable days of a month. Past months are empty and
// the current month starts today.
func (s *Service) AvailableDays(ctx context.Context, year int, month time.Month) ([]int, error) {
	today := s.Now()
	first := time.Date(year, month, 1, 0, 0, 0, 0, s.loc)
	thisMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, s.loc)

	fromDay := 1
	switch {
	case first.Before(thisMonth):
		return []int{}, nil
	case first.Equal(thisMonth):
		fromDay = today.Day()
	}

	hours, err := s.schedule.OperatingHours(ctx)
	if err != nil {
		return nil, fmt.Errorf("load operating hours: %w", err)
	}
	from := first.Format(calendar.DateLayout)
	to := time.Date(year, month, calendar.DaysIn(year, month), 0, 0, 0, 0, s.loc).Format(calendar.DateLayout)
	blocks, err := s.schedule.AgendaBlocks(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load agenda blocks: %w", err)
	}

	days := availability.AvailableDays(year, month, fromDay, hours, blocks)
	if days == nil {
		days = []int{}
	}
	return days, nil
}

// Times lists the start times still bookable for serviceID on date.
func (s *Service) Times(ctx context.Context, date, serviceID string) ([]string, error) {
	date, err := calendar.NormalizeDate(date, s.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if _, err := s.schedule.Service(ctx, serviceID); err != nil {
		return nil, err
	}
	hours, blocks, appts, err := s.dayState(ctx, date)
	if err != nil {
		return nil, err
	}
	times := availability.BookableTimes(date, serviceID, hours, blocks, appts, s.step, s.Now())
	if times == nil {
		times = []string{}
	}
	return times, nil
}

// Probe evaluates one slot without booking it. excludeID lets an edit form
// check the appointment's new slot against everything but itself.
func (s *Service) Probe(ctx context.Context, date, clock, serviceID, excludeID string) (availability.Verdict, error) {
	date, clock, err := s.normalize(date, clock)
	if err != nil {
		return 0, err
	}
	hours, blocks, appts, err := s.dayState(ctx, date)
	if err != nil {
		return 0, err
	}
	verdict := availability.Evaluate(date, clock, serviceID, hours, blocks, appts, excludeID)
	s.metrics.ObserveAvailability(verdict.String())
	return verdict, nil
}

func (s *Service) dayState(ctx context.Context, date string) ([]model.OperatingHours, []model.AgendaBlock, []model.Appointment, error) {
	hours, err := s.schedule.OperatingHours(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load operating hours: %w", err)
	}
	blocks, err := s.schedule.AgendaBlocks(ctx, date, date)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load agenda blocks: %w", err)
	}
	appts, err := s.repo.ActiveOn(ctx, nil, date)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load appointments: %w", err)
	}
	return hours, blocks, appts, nil
}
