// Package money handles prices in Brazilian reais. Amounts are kept in cents.
package money

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Amount is a value in centavos.
type Amount int64

// FromFloat rounds a decimal reais value to cents.
func FromFloat(reais float64) Amount {
	return Amount(math.Round(reais * 100))
}

func (a Amount) Float() float64 {
	return float64(a) / 100
}

// FormatBRL renders "R$ 130,00". No thousands separator is used.
func FormatBRL(a Amount) string {
	sign := ""
	if a < 0 {
		sign = "-"
		a = -a
	}
	return fmt.Sprintf("%sR$ %d,%02d", sign, a/100, a%100)
}

func (a Amount) String() string { return FormatBRL(a) }

// ParseBRL reads labels such as "R$ 150,00" or "150,5". Everything except
// digits and the decimal comma is ignored, and unreadable input yields 0.
func ParseBRL(label string) Amount {
	var b strings.Builder
	for _, r := range label {
		if (r >= '0' && r <= '9') || r == ',' {
			b.WriteRune(r)
		}
	}
	cleaned := strings.Replace(b.String(), ",", ".", 1)
	if i := strings.IndexByte(cleaned, ','); i >= 0 {
		cleaned = cleaned[:i]
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return FromFloat(f)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(a.Float(), 'f', 2, 64)), nil
}

// UnmarshalJSON accepts a JSON number (reais) or a BRL label string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = ParseBRL(s)
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("money: invalid amount %s", data)
	}
	*a = FromFloat(f)
	return nil
}
