package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// ParseClock parses a wall-clock "HH:MM" (24h).
func ParseClock(path, raw string) (hour, minute int, err error) {
	s := strings.TrimSpace(raw)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("%s: invalid time %q, expected HH:MM", path, raw)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("%s: invalid hour in %q", path, raw)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return 0, 0, fmt.Errorf("%s: invalid minute in %q", path, raw)
	}
	return h, m, nil
}

// LoadLocation resolves an IANA name; empty means UTC.
func LoadLocation(path, raw string) (*time.Location, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return loc, nil
}
