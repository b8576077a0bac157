// Package policy decides when reminders go out before an appointment.
package policy

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"
)

// MaxOffset bounds how early a reminder may be requested.
const MaxOffset = 7 * 24 * time.Hour

var defaultOffsets = []time.Duration{24 * time.Hour}

// Provider supplies the studio's reminder policy.
type Provider interface {
	ReminderOffsets(ctx context.Context) ([]time.Duration, error)
}

// Static is a Provider with a fixed list.
type Static []time.Duration

func NewStaticProvider(offsets []time.Duration) Provider {
	return Static(slices.Clone(offsets))
}

// ReminderOffsets returns a copy so callers cannot change the policy.
func (s Static) ReminderOffsets(context.Context) ([]time.Duration, error) {
	return slices.Clone(s), nil
}

// ParseOffsets reads a comma separated list such as "1440,60" or "24h,1h".
// Bare numbers are minutes. The result is deduplicated and largest first.
// Entries that are not positive or exceed MaxOffset are logged and skipped;
// an empty result falls back to 24h.
func ParseOffsets(raw string, logger *slog.Logger) []time.Duration {
	var offsets []time.Duration
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, ok := parseOffset(part)
		if !ok {
			logger.Warn("invalid reminder offset", "value", part)
			continue
		}
		offsets = append(offsets, d)
	}
	if len(offsets) == 0 {
		return slices.Clone(defaultOffsets)
	}
	slices.SortFunc(offsets, func(a, b time.Duration) int { return cmp.Compare(b, a) })
	return slices.Compact(offsets)
}

func parseOffset(s string) (time.Duration, bool) {
	var d time.Duration
	if mins, err := strconv.Atoi(s); err == nil {
		d = time.Duration(mins) * time.Minute
	} else if parsed, err := time.ParseDuration(s); err == nil {
		d = parsed
	} else {
		return 0, false
	}
	return d, d > 0 && d <= MaxOffset
}
