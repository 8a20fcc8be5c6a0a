package timeslot

import "time"

// ClockTime is a civil time of day in the schedule owner's timezone.
type ClockTime struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute,omitempty"`
}

// Window is one bookable stretch of a weekday, start inclusive, end
// exclusive. A window whose end does not follow its start is tolerated and
// produces no slots.
type Window struct {
	Start ClockTime `json:"start"`
	End   ClockTime `json:"end"`
}

// WeeklyTemplate maps a weekday to the bookable windows that recur on it.
// Windows on the same weekday may overlap or touch; weekdays without an
// entry contribute nothing.
type WeeklyTemplate map[time.Weekday][]Window
