package timeslot

import (
	"errors"
	"testing"
	"time"
)

func TestParseDay_RoundTrip(t *testing.T) {
	for _, s := range []string{"2026-01-05", "2024-02-29", "1999-12-31", "2026-08-01"} {
		d, err := ParseDay(s)
		if err != nil {
			t.Fatalf("ParseDay(%q) failed: %v", s, err)
		}
		if d.String() != s {
			t.Fatalf("round trip of %q produced %q", s, d.String())
		}
	}
}

func TestParseDay_Invalid(t *testing.T) {
	cases := []string{
		"",
		"not-a-day",
		"2026-01",
		"2026-01-05-extra",
		"2026-0a-05",
		"2026-13-01",
		"2026-00-10",
		"2026-04-31",
		"2023-02-29", // not a leap year
		"2026-02-30",
	}
	for _, s := range cases {
		if _, err := ParseDay(s); err == nil {
			t.Fatalf("ParseDay(%q) unexpectedly succeeded", s)
		} else {
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("ParseDay(%q) returned %T, want *FormatError", s, err)
			}
		}
	}
}

func TestNewDay_LeapYear(t *testing.T) {
	if _, err := NewDay(2024, time.February, 29); err != nil {
		t.Fatalf("2024-02-29 should be valid: %v", err)
	}
	if _, err := NewDay(2023, time.February, 29); err == nil {
		t.Fatal("2023-02-29 should be invalid")
	}
	if _, err := NewDay(1900, time.February, 29); err == nil {
		t.Fatal("1900-02-29 should be invalid (century rule)")
	}
	if _, err := NewDay(2000, time.February, 29); err != nil {
		t.Fatalf("2000-02-29 should be valid: %v", err)
	}
}

func TestDay_Ordering(t *testing.T) {
	a, _ := NewDay(2025, time.December, 31)
	b, _ := NewDay(2026, time.January, 1)
	c, _ := NewDay(2026, time.January, 2)

	if !a.Before(b) || !b.Before(c) {
		t.Fatal("expected a < b < c")
	}
	if !c.After(a) {
		t.Fatal("expected c > a")
	}
	if b.Compare(b) != 0 || !b.Equal(b) {
		t.Fatal("expected b == b")
	}
}

func TestTodayOffset(t *testing.T) {
	now := time.Date(2026, time.August, 28, 15, 4, 5, 0, time.UTC)

	if got := TodayOffset(now, 0).String(); got != "2026-08-28" {
		t.Fatalf("offset 0: got %s", got)
	}
	if got := TodayOffset(now, 14).String(); got != "2026-09-11" {
		t.Fatalf("offset 14: got %s", got)
	}
	if got := TodayOffset(now, -28).String(); got != "2026-07-31" {
		t.Fatalf("offset -28: got %s", got)
	}
}

func TestDayOf_TruncatesToUTCDate(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	// 23:30 local on the 27th is 04:30 UTC on the 28th.
	instant := time.Date(2026, time.August, 27, 23, 30, 0, 0, loc)

	if got := DayOf(instant).String(); got != "2026-08-28" {
		t.Fatalf("got %s, want 2026-08-28", got)
	}
}

func TestDay_AddDaysAndWeekday(t *testing.T) {
	d, _ := NewDay(2024, time.January, 1) // a Monday
	if d.Weekday() != time.Monday {
		t.Fatalf("2024-01-01 should be a Monday, got %s", d.Weekday())
	}
	if got := d.AddDays(31).String(); got != "2024-02-01" {
		t.Fatalf("AddDays(31): got %s", got)
	}
	if got := d.AddDays(-1).String(); got != "2023-12-31" {
		t.Fatalf("AddDays(-1): got %s", got)
	}
}

func TestDay_Interval_UTC(t *testing.T) {
	d, _ := NewDay(2026, time.August, 28)
	iv := d.Interval(time.UTC)

	wantStart := time.Date(2026, time.August, 28, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2026, time.August, 28, 23, 59, 59, int(999*time.Millisecond), time.UTC)
	if !iv.Start.Equal(wantStart) || !iv.End.Equal(wantEnd) {
		t.Fatalf("got [%s, %s]", iv.Start, iv.End)
	}
}

func TestDay_Interval_DST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	// Spring forward: the civil day has 23 hours.
	short, _ := NewDay(2026, time.March, 8)
	iv := short.Interval(loc)
	if want := 23*time.Hour - time.Millisecond; iv.Duration() != want {
		t.Fatalf("spring-forward day: got %s, want %s", iv.Duration(), want)
	}
	if wantStart := time.Date(2026, time.March, 8, 5, 0, 0, 0, time.UTC); !iv.Start.Equal(wantStart) {
		t.Fatalf("spring-forward start: got %s, want %s", iv.Start, wantStart)
	}

	// Fall back: the civil day has 25 hours.
	long, _ := NewDay(2026, time.November, 1)
	iv = long.Interval(loc)
	if want := 25*time.Hour - time.Millisecond; iv.Duration() != want {
		t.Fatalf("fall-back day: got %s, want %s", iv.Duration(), want)
	}
}
