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

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// ParseClock parses "HH:MM" (24h).
func ParseClock(path, raw string) (Clock, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return Clock{}, fmt.Errorf("%s: invalid time %q (want HH:MM)", path, raw)
	}
	hh, err1 := strconv.Atoi(h)
	mm, err2 := strconv.Atoi(m)
	if err1 != nil || err2 != nil || hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return Clock{}, fmt.Errorf("%s: invalid time %q (want HH:MM)", path, raw)
	}
	return Clock{Hour: hh, Minute: mm}, nil
}

func ParseClockOrDefault(path, raw string, def Clock) (Clock, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	return ParseClock(path, raw)
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
}

func ParseWeekday(path, raw string, def time.Weekday) (time.Weekday, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return def, nil
	}
	if d, ok := weekdays[s]; ok {
		return d, nil
	}
	if len(s) >= 3 {
		for name, d := range weekdays {
			if strings.HasPrefix(name, s) {
				return d, nil
			}
		}
	}
	return 0, fmt.Errorf("%s: invalid weekday %q", path, raw)
}
