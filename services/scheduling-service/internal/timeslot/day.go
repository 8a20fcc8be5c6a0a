// Package timeslot implements the availability engine: calendar days,
// interval algebra, weekly-template expansion, and busy-time subtraction.
// Everything in it is a pure function of its inputs; the two real-world
// clock reads ("today" and "now") are passed in by callers.
package timeslot

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatError reports a date string that could not be parsed into a real
// calendar day.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid day %q: %s", e.Input, e.Reason)
}

// Day is an immutable calendar date with no time-of-day or timezone attached.
// The zero value is not a valid day; construct one through NewDay, ParseDay,
// TodayOffset, or DayOf.
type Day struct {
	year  int
	month time.Month
	day   int
}

// NewDay validates year, month, and day against the real calendar,
// including leap-year February.
func NewDay(year int, month time.Month, day int) (Day, error) {
	if month < time.January || month > time.December {
		return Day{}, fmt.Errorf("invalid month %d", int(month))
	}
	if day < 1 || day > daysInMonth(year, month) {
		return Day{}, fmt.Errorf("invalid day %d for %04d-%02d", day, year, int(month))
	}
	return Day{year: year, month: month, day: day}, nil
}

func daysInMonth(year int, month time.Month) int {
	// Day zero of the following month normalizes to the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// TodayOffset returns the calendar date of now shifted by days (which may be
// negative), read in now's location.
func TodayOffset(now time.Time, days int) Day {
	t := now.AddDate(0, 0, days)
	return Day{year: t.Year(), month: t.Month(), day: t.Day()}
}

// DayOf truncates an instant to its UTC calendar date.
func DayOf(t time.Time) Day {
	u := t.UTC()
	return Day{year: u.Year(), month: u.Month(), day: u.Day()}
}

// ParseDay parses a YYYY-MM-DD string. The input must split into three
// integers that survive calendar validation; anything else is a *FormatError.
func ParseDay(s string) (Day, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return Day{}, &FormatError{Input: s, Reason: "want YYYY-MM-DD"}
	}
	var nums [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return Day{}, &FormatError{Input: s, Reason: "non-numeric component"}
		}
		nums[i] = n
	}
	d, err := NewDay(nums[0], time.Month(nums[1]), nums[2])
	if err != nil {
		return Day{}, &FormatError{Input: s, Reason: err.Error()}
	}
	return d, nil
}

// String returns the canonical zero-padded YYYY-MM-DD form.
func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.year, int(d.month), d.day)
}

// Compare orders days by (year, month, day). It deliberately never converts
// to instants, so ordering cannot depend on a timezone.
func (d Day) Compare(o Day) int {
	switch {
	case d.year != o.year:
		return cmpInt(d.year, o.year)
	case d.month != o.month:
		return cmpInt(int(d.month), int(o.month))
	default:
		return cmpInt(d.day, o.day)
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (d Day) Before(o Day) bool { return d.Compare(o) < 0 }

func (d Day) After(o Day) bool { return d.Compare(o) > 0 }

func (d Day) Equal(o Day) bool { return d == o }

// AddDays returns the day shifted by n calendar days.
func (d Day) AddDays(n int) Day {
	t := time.Date(d.year, d.month, d.day, 12, 0, 0, 0, time.UTC).AddDate(0, 0, n)
	return Day{year: t.Year(), month: t.Month(), day: t.Day()}
}

func (d Day) Weekday() time.Weekday {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC).Weekday()
}

// Interval returns the [00:00:00.000, 23:59:59.999] civil-time window of the
// day in loc as absolute instants. A nil loc means the process-local zone.
// On a day with a DST transition the window still covers the civil day, so
// its absolute length may be an hour short or long.
func (d Day) Interval(loc *time.Location) Interval {
	if loc == nil {
		loc = time.Local
	}
	start := time.Date(d.year, d.month, d.day, 0, 0, 0, 0, loc)
	end := time.Date(d.year, d.month, d.day, 23, 59, 59, int(999*time.Millisecond), loc)
	return Interval{Start: start.UTC(), End: end.UTC()}
}

// at places a civil time of day on this date in the fixed UTC reference frame
// used for template expansion.
func (d Day) at(c ClockTime) time.Time {
	return time.Date(d.year, d.month, d.day, c.Hour, c.Minute, 0, 0, time.UTC)
}
