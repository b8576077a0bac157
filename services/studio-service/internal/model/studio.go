// Package model holds the studio's own records: profile, catalog, clients
// and the weekly schedule.
package model

import (
	"time"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/money"
)

type Profile struct {
	Name      string    `json:"name" yaml:"name"`
	OwnerName string    `json:"owner_name" yaml:"owner_name"`
	Whatsapp  string    `json:"whatsapp" yaml:"whatsapp"`
	Address   string    `json:"address" yaml:"address"`
	Email     string    `json:"email" yaml:"email"`
	AvatarURL string    `json:"avatar_url" yaml:"avatar_url"`
	History   string    `json:"history" yaml:"history"`
	Mission   string    `json:"mission" yaml:"mission"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

type Service struct {
	ID              string       `json:"id" yaml:"-"`
	Name            string       `json:"name" yaml:"name"`
	Price           money.Amount `json:"price" yaml:"-"`
	PriceLabel      string       `json:"price_label" yaml:"price"`
	Description     string       `json:"description" yaml:"description"`
	LongDescription string       `json:"long_description" yaml:"long_description"`
	Duration        string       `json:"duration" yaml:"duration"`
	DurationMinutes int          `json:"duration_minutes" yaml:"-"`
	Maintenance     string       `json:"maintenance" yaml:"maintenance"`
	ImageURL        string       `json:"image_url" yaml:"image_url"`
	CreatedAt       time.Time    `json:"created_at" yaml:"-"`
	UpdatedAt       time.Time    `json:"updated_at" yaml:"-"`
}

type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Whatsapp  string    `json:"whatsapp"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

type TimeRange struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// OperatingHours is one weekday; DayOfWeek 0 is Sunday.
type OperatingHours struct {
	DayOfWeek int         `json:"day_of_week" yaml:"day_of_week"`
	IsOpen    bool        `json:"is_open" yaml:"is_open"`
	Slots     []TimeRange `json:"slots" yaml:"slots"`
}

type AgendaBlock struct {
	ID        string    `json:"id"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

const DefaultBlockReason = "Ausência"
