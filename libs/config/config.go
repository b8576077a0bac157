// Package config reads service settings from the environment. Every getter
// trims the value and treats blank as unset; typed getters fall back when the
// value does not parse.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

// parsed returns conv(value) when key is set, parses and passes valid.
func parsed[T any](key string, fallback T, conv func(string) (T, error), valid func(T) bool) T {
	raw, ok := lookup(key)
	if !ok {
		return fallback
	}
	v, err := conv(raw)
	if err != nil || (valid != nil && !valid(v)) {
		return fallback
	}
	return v
}

func String(key, fallback string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return fallback
}

func RequiredString(key string) (string, error) {
	v, ok := lookup(key)
	if !ok {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// Port validates a TCP port number and returns it as a string for use in an
// address.
func Port(key, fallback string) (string, error) {
	v := String(key, fallback)
	if p, err := strconv.Atoi(v); err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%s must be a valid TCP port (got %q)", key, v)
	}
	return v, nil
}

// Int only accepts positive values.
func Int(key string, fallback int) int {
	return parsed(key, fallback, strconv.Atoi, func(n int) bool { return n > 0 })
}

func Bool(key string, fallback bool) bool {
	return parsed(key, fallback, parseBool, nil)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}

func Float(key string, fallback float64) float64 {
	return parsed(key, fallback, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) }, nil)
}

// Duration accepts Go duration syntax ("90s", "5m") or a bare number of
// seconds. Only positive values are used.
func Duration(key string, fallback time.Duration) time.Duration {
	return parsed(key, fallback, parseDuration, func(d time.Duration) bool { return d > 0 })
}

func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// List splits a comma separated value, dropping empty items.
func List(key, fallback string) []string {
	var out []string
	for _, item := range strings.Split(String(key, fallback), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
