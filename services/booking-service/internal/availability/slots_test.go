package availability

import (
	"reflect"
	"testing"
	"time"

	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/model"
)

func TestBookableTimes_Basic(t *testing.T) {
	hours := []model.OperatingHours{{DayOfWeek: 2, IsOpen: true, Slots: []model.TimeRange{
		{Start: "09:00", End: "10:00"},
		{Start: "09:30", End: "11:00"},
	}}}
	appts := []model.Appointment{
		{ID: "a", ServiceID: "svc-1", Date: "2025-06-10", Time: "09:30", Status: model.StatusScheduled},
		{ID: "b", ServiceID: "svc-1", Date: "2025-06-10", Time: "10:00", Status: model.StatusCancelled},
	}
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	got := BookableTimes("2025-06-10", "svc-1", hours, nil, appts, 30*time.Minute, now)
	want := []string{"09:00", "10:00", "10:30"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestBookableTimes_SkipsPast(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	hours := []model.OperatingHours{{DayOfWeek: 2, IsOpen: true, Slots: []model.TimeRange{{Start: "09:00", End: "10:00"}}}}
	now := time.Date(2025, 6, 10, 9, 31, 0, 0, loc)

	got := BookableTimes("2025-06-10", "svc-1", hours, nil, nil, 15*time.Minute, now)
	want := []string{"09:45"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestBookableTimes_ClosedOrBlocked(t *testing.T) {
	hours := []model.OperatingHours{{DayOfWeek: 2, IsOpen: true, Slots: []model.TimeRange{{Start: "09:00", End: "10:00"}}}}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	blocks := []model.AgendaBlock{{StartDate: "2025-06-10", EndDate: "2025-06-10"}}

	if got := BookableTimes("2025-06-10", "svc-1", hours, blocks, nil, 30*time.Minute, now); len(got) != 0 {
		t.Fatalf("blocked date should have no times, got %v", got)
	}
	if got := BookableTimes("2025-06-11", "svc-1", hours, nil, nil, 30*time.Minute, now); len(got) != 0 {
		t.Fatalf("closed weekday should have no times, got %v", got)
	}
	if got := BookableTimes("2025-06-10", "svc-1", hours, nil, nil, 0, now); got != nil {
		t.Fatalf("zero step should yield nil, got %v", got)
	}
}

func TestBookableTimesAgreeWithCheckAvailability(t *testing.T) {
	hours := everyDayHours()
	appts := []model.Appointment{{ID: "a", ServiceID: "svc-1", Date: "2025-06-10", Time: "11:00", Status: model.StatusScheduled}}
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, clock := range BookableTimes("2025-06-10", "svc-1", hours, nil, appts, 30*time.Minute, now) {
		if !CheckAvailability("2025-06-10", clock, "svc-1", hours, nil, appts, "") {
			t.Fatalf("%s listed but not available", clock)
		}
	}
}
