package config

import (
	"fmt"
	"time"
)

// ClockTime is a time of day without a date, as given by a daily trigger.
type ClockTime struct {
	Hour   int
	Minute int
	Second int
}

// ParseClockTime parses "HH:MM" or "HH:MM:SS" in 24-hour notation.
func ParseClockTime(s string) (ClockTime, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		t, err := time.Parse(layout, s)
		if err == nil {
			return ClockTime{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return ClockTime{}, fmt.Errorf("parse trigTime %q: want HH:MM or HH:MM:SS", s)
}

// Next returns the first occurrence of the clock time strictly after now,
// in now's location. An occurrence equal to now counts as already passed.
func (c ClockTime) Next(now time.Time) time.Time {
	due := time.Date(now.Year(), now.Month(), now.Day(), c.Hour, c.Minute, c.Second, 0, now.Location())
	if !due.After(now) {
		due = due.AddDate(0, 0, 1)
	}
	return due
}
