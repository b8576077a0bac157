package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/money"
)

type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// ParseStatus accepts the three known statuses, case-insensitively.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(raw))); s {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return s, nil
	default:
		return "", fmt.Errorf("unknown appointment status %q", raw)
	}
}

// Active reports whether the appointment still holds its slot.
func (s Status) Active() bool {
	return s != StatusCancelled
}

type Appointment struct {
	ID             string       `json:"id"`
	ServiceID      string       `json:"service_id"`
	ServiceName    string       `json:"service_name"`
	ServicePrice   money.Amount `json:"service_price"`
	ClientName     string       `json:"client_name"`
	ClientWhatsapp string       `json:"client_whatsapp"`
	Date           string       `json:"date"`
	Time           string       `json:"time"`
	Status         Status       `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}
