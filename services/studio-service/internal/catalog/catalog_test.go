package catalog

import (
	"errors"
	"testing"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/money"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/studio-service/internal/model"
)

func TestParseDurationToMinutes(t *testing.T) {
	cases := map[string]int{
		"2h":           120,
		"1h 30m":       90,
		"1H30MIN":      90,
		"45min":        45,
		"90 minutos":   90,
		"cerca de 3 h": 180,
		"":             60,
		"rápido":       60,
		"0h":           60,
	}
	for in, want := range cases {
		if got := ParseDurationToMinutes(in); got != want {
			t.Fatalf("ParseDurationToMinutes(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestValidateHours(t *testing.T) {
	ok := []model.OperatingHours{
		{DayOfWeek: 1, IsOpen: true, Slots: []model.TimeRange{{Start: "09:00", End: "12:00"}}},
		{DayOfWeek: 2, IsOpen: true},
		{DayOfWeek: 0},
	}
	if err := ValidateHours(ok); err != nil {
		t.Fatalf("valid hours rejected: %v", err)
	}

	bad := [][]model.OperatingHours{
		{{DayOfWeek: 7}},
		{{DayOfWeek: 1}, {DayOfWeek: 1}},
		{{DayOfWeek: 1, Slots: []model.TimeRange{{Start: "9:00", End: "12:00"}}}},
		{{DayOfWeek: 1, Slots: []model.TimeRange{{Start: "12:00", End: "12:00"}}}},
		{{DayOfWeek: 1, Slots: []model.TimeRange{{Start: "13:00", End: "25:00"}}}},
	}
	for i, days := range bad {
		if err := ValidateHours(days); !errors.Is(err, ErrInvalid) {
			t.Fatalf("case %d: expected ErrInvalid, got %v", i, err)
		}
	}
}

func TestNormalizeBlock(t *testing.T) {
	b, err := NormalizeBlock(model.AgendaBlock{StartDate: "2025-06-10"})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if b.EndDate != "2025-06-10" || b.Reason != model.DefaultBlockReason {
		t.Fatalf("unexpected block %+v", b)
	}
	if _, err := NormalizeBlock(model.AgendaBlock{StartDate: "2025-06-10", EndDate: "2025-06-09"}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected reversed range to fail, got %v", err)
	}
	if _, err := NormalizeBlock(model.AgendaBlock{StartDate: "10/06/2025"}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected bad date to fail, got %v", err)
	}
}

func TestNormalizeService(t *testing.T) {
	s, err := NormalizeService(model.Service{Name: " Volume Russo ", Price: money.Amount(15000), Duration: "2h 30m"})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if s.Name != "Volume Russo" || s.DurationMinutes != 150 || s.PriceLabel != "R$ 150,00" {
		t.Fatalf("unexpected service %+v", s)
	}
	if _, err := NormalizeService(model.Service{Name: "  "}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected missing name to fail")
	}
}

func TestFillWeek(t *testing.T) {
	week := FillWeek([]model.OperatingHours{{DayOfWeek: 3, IsOpen: true, Slots: []model.TimeRange{{Start: "09:00", End: "10:00"}}}})
	if len(week) != 7 {
		t.Fatalf("expected 7 days, got %d", len(week))
	}
	if week[0].IsOpen || week[0].Slots == nil {
		t.Fatalf("missing day should be closed with empty slots: %+v", week[0])
	}
	if !week[3].IsOpen {
		t.Fatalf("stored day lost")
	}
}
