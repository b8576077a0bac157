// Package whatsapp composes wa.me deep links and the studio's message texts.
package whatsapp

import (
	"net/url"
	"strings"
)

// DigitsOnly strips everything but 0-9 from a phone number.
func DigitsOnly(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Link builds https://wa.me/<digits>?text=<text>. Spaces are encoded as %20
// because WhatsApp shows a literal "+" otherwise.
func Link(phone, text string) string {
	link := "https://wa.me/" + DigitsOnly(phone)
	if text == "" {
		return link
	}
	return link + "?text=" + strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
}

// FormatDateBR turns "2025-06-10" into "10/06/2025". Other input is returned
// unchanged.
func FormatDateBR(date string) string {
	parts := strings.Split(date, "-")
	if len(parts) != 3 {
		return date
	}
	return parts[2] + "/" + parts[1] + "/" + parts[0]
}
