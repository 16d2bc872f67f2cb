package domain

import (
	"fmt"
	"time"
	_ "time/tzdata" // user timezones must resolve on minimal images
)

// DateLayout is the calendar-date format used for snapshot and rate dates.
const DateLayout = "2006-01-02"

// LocalDate returns the calendar date of t as observed in loc.
func LocalDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// Yesterday returns the calendar date before the one observed at t in loc.
func Yesterday(t time.Time, loc *time.Location) string {
	local := t.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d-1, 0, 0, 0, 0, loc).Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
	}
	return t, nil
}

// LoadLocation resolves an IANA zone name, returning fallback when the name is empty or unknown.
func LoadLocation(name string, fallback *time.Location) *time.Location {
	if name == "" {
		return fallback
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fallback
	}
	return loc
}
