package model

// TimeRange is a half-open [Start, End) interval of "HH:MM" clocks.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// OperatingHours describes one weekday. DayOfWeek follows time.Weekday
// (0 is Sunday).
type OperatingHours struct {
	DayOfWeek int         `json:"day_of_week"`
	IsOpen    bool        `json:"is_open"`
	Slots     []TimeRange `json:"slots"`
}

// AgendaBlock closes every day from StartDate to EndDate inclusive.
type AgendaBlock struct {
	ID        string `json:"id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason"`
}

const DefaultBlockReason = "Ausência"
