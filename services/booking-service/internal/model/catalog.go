package model

import "github.com/joaocarlostuc75/ciliosdeluxo/libs/money"

// Service is the booking view of a catalog entry.
type Service struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Price           money.Amount `json:"price"`
	DurationMinutes int          `json:"duration_minutes"`
}

// Studio holds the profile fields booking needs for messages.
type Studio struct {
	Name     string `json:"name"`
	Whatsapp string `json:"whatsapp"`
	Address  string `json:"address"`
}
