// Package birthday finds users whose birthday is today and mails them.
package birthday

import (
	"fmt"
	"strings"
	"time"
)

// MatchMode selects how a stored date of birth is compared with the scan day.
type MatchMode string

const (
	// MatchExact selects records whose dateOfBirth instant lies inside the
	// day window, year included.
	MatchExact MatchMode = "exact"
	// MatchAnniversary selects records whose stored calendar month and day
	// equal the scan day's, in any year.
	MatchAnniversary MatchMode = "anniversary"
)

// ParseMatchMode converts a config value into a MatchMode.
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(strings.ToLower(strings.TrimSpace(s))) {
	case MatchExact, "":
		return MatchExact, nil
	case MatchAnniversary:
		return MatchAnniversary, nil
	default:
		return "", fmt.Errorf("unknown match mode %q", s)
	}
}

// Window is the [Start, End) instant range of one calendar day in Location.
type Window struct {
	Start    time.Time
	End      time.Time
	Location *time.Location
}

// DayWindow returns the window of the calendar day containing now in loc.
// On DST transition days the window is 23 or 25 hours long.
func DayWindow(now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	y, m, d := local.Date()
	return Window{
		Start:    time.Date(y, m, d, 0, 0, 0, 0, loc),
		End:      time.Date(y, m, d+1, 0, 0, 0, 0, loc),
		Location: loc,
	}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Date returns the window's calendar date as YYYY-MM-DD.
func (w Window) Date() string {
	return w.Start.Format("2006-01-02")
}

// MonthDay is a year-independent calendar day.
type MonthDay struct {
	Month time.Month
	Day   int
}

// Query describes the birthday lookup handed to a store.
type Query struct {
	Mode   MatchMode
	Window Window
	// Days lists the month/day pairs accepted in anniversary mode.
	Days []MonthDay
}

// NewQuery builds the store query for a window.
// Users born on 29 February are celebrated on 28 February in common years.
func NewQuery(mode MatchMode, w Window) Query {
	q := Query{Mode: mode, Window: w}
	if mode != MatchAnniversary {
		return q
	}

	y, m, d := w.Start.Date()
	q.Days = []MonthDay{{Month: m, Day: d}}
	if m == time.February && d == 28 && !isLeap(y) {
		q.Days = append(q.Days, MonthDay{Month: time.February, Day: 29})
	}
	return q
}

// Matches reports whether a date of birth satisfies the query.
// Stores that cannot push the filter down use it directly.
func (q Query) Matches(dob time.Time) bool {
	if q.Mode != MatchAnniversary {
		return q.Window.Contains(dob)
	}

	// A date of birth is a calendar date stored as midnight UTC.
	_, m, d := dob.UTC().Date()
	for _, md := range q.Days {
		if md.Month == m && md.Day == d {
			return true
		}
	}
	return false
}

// TimezoneName returns the IANA name of the window's location.
func (q Query) TimezoneName() string {
	if q.Window.Location == nil {
		return "UTC"
	}
	return q.Window.Location.String()
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
