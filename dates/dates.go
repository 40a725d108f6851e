// Package dates provides the calendar arithmetic the scheduling engine is
// built on: weekend detection, business-day counting and offsetting, and
// lenient date parsing for record-store fields.
package dates

import (
	"strings"
	"time"
)

// IsWeekend reports whether d falls on a Saturday or Sunday.
func IsWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// CountBusinessDays counts the weekdays after start up to and including end.
// It returns 0 when end is on or before start; callers must guard when a
// positive remaining-day count is required. The half-open window is what
// makes CountBusinessDays(d, AddBusinessDays(d, n)) == n hold for every d,
// weekend starts included.
func CountBusinessDays(start, end time.Time) int {
	start = truncate(start)
	end = truncate(end)

	n := 0
	for d := start.AddDate(0, 0, 1); !d.After(end); d = d.AddDate(0, 0, 1) {
		if !IsWeekend(d) {
			n++
		}
	}
	return n
}

// AddBusinessDays advances start by n weekdays, skipping Saturdays and
// Sundays. For n >= 1 the result is strictly after start and always a
// weekday. n <= 0 returns start unchanged.
func AddBusinessDays(start time.Time, n int) time.Time {
	d := truncate(start)
	for added := 0; added < n; {
		d = d.AddDate(0, 0, 1)
		if !IsWeekend(d) {
			added++
		}
	}
	return d
}

// AdjustForWeekend moves a Saturday or Sunday back to the preceding Friday.
// Weekdays pass through unchanged. Only calendar-day stage targets need
// this; business-day arithmetic lands on weekdays by construction.
func AdjustForWeekend(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, -2)
	default:
		return d
	}
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DateOf strips the time of day, returning midnight of t's calendar date
// in t's location.
func DateOf(t time.Time) time.Time {
	return truncate(t)
}

// DaysBetween counts calendar days from a's date to b's date, ignoring
// time of day. Negative when b's date is earlier.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from) / (24 * time.Hour))
}

var dateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"1/2/06",
	"2006/01/02",
}

// ParseDate parses a record-store date field. Surrounding whitespace is
// tolerated and several layouts are accepted, matching the loosely typed
// source data. An empty or unparseable value returns the zero time and
// false.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func truncate(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, d.Location())
}
