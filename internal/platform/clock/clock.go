// Package clock abstracts the wall clock so date- and hour-dependent rules
// can be tested at a frozen instant.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type systemClock struct{ loc *time.Location }

// New returns a clock reading the system time in loc.
func New(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return systemClock{loc: loc}
}

func (c systemClock) Now() time.Time { return time.Now().In(c.loc) }

// Fixed always reports the same instant.
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f) }

// Today truncates t to midnight in t's location.
func Today(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDate reports whether a and b carry the same calendar date. Each value
// is read in its own location, so a DATE scanned as UTC midnight compares
// equal to a local timestamp on that day.
func SameDate(a, b time.Time) bool {
	return CompareDates(a, b) == 0
}

// CompareDates orders a and b by calendar date alone, returning -1, 0 or +1.
func CompareDates(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	switch {
	case ay != by:
		return sign(ay - by)
	case am != bm:
		return sign(int(am) - int(bm))
	}
	return sign(ad - bd)
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

// DateOnly builds a calendar date at midnight in loc.
func DateOnly(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, loc)
}
