// Package schedule loads the owner's booking policy: the recurring weekly
// template and the knobs applied when resolving availability.
package schedule

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/meetwindow/meetwindow/libs/config"
	"github.com/meetwindow/meetwindow/services/scheduling-service/internal/timeslot"
)

type Settings struct {
	Template         timeslot.WeeklyTemplate
	Timezone         *time.Location
	AllowedDurations []time.Duration
	DefaultDuration  time.Duration
	Padding          time.Duration
	LeadTime         time.Duration
	WindowDays       int // how far ahead availability is offered
}

// DefaultTemplate is the owner schedule used when none is configured:
// weekdays, 10:00 to 23:00.
func DefaultTemplate() timeslot.WeeklyTemplate {
	workday := []timeslot.Window{
		{Start: timeslot.ClockTime{Hour: 10}, End: timeslot.ClockTime{Hour: 23}},
	}
	tpl := timeslot.WeeklyTemplate{}
	for wd := time.Monday; wd <= time.Friday; wd++ {
		tpl[wd] = workday
	}
	return tpl
}

func FromEnv() (*Settings, error) {
	loc, err := time.LoadLocation(config.String("OWNER_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("OWNER_TIMEZONE: %w", err)
	}

	padding, err := config.Minutes("SLOT_PADDING_MINUTES", 0)
	if err != nil {
		return nil, err
	}
	leadTime, err := config.Minutes("LEAD_TIME_MINUTES", 15)
	if err != nil {
		return nil, err
	}
	defaultDuration, err := config.Minutes("DEFAULT_DURATION_MINUTES", 60)
	if err != nil {
		return nil, err
	}
	windowDays, err := config.Int("BOOKING_WINDOW_DAYS", 14)
	if err != nil {
		return nil, err
	}
	if windowDays < 1 {
		return nil, fmt.Errorf("BOOKING_WINDOW_DAYS must be positive (got %d)", windowDays)
	}

	allowed, err := parseDurations(config.String("ALLOWED_DURATIONS_MINUTES", "15,30,60,90,120,150"))
	if err != nil {
		return nil, err
	}

	tpl := DefaultTemplate()
	if raw := config.String("SCHEDULE_TEMPLATE_JSON", ""); raw != "" {
		tpl, err = ParseTemplate([]byte(raw))
		if err != nil {
			return nil, err
		}
	}

	s := &Settings{
		Template:         tpl,
		Timezone:         loc,
		AllowedDurations: allowed,
		DefaultDuration:  defaultDuration,
		Padding:          padding,
		LeadTime:         leadTime,
		WindowDays:       windowDays,
	}
	if !s.AllowsDuration(s.DefaultDuration) {
		return nil, fmt.Errorf("DEFAULT_DURATION_MINUTES %d is not in ALLOWED_DURATIONS_MINUTES", int(defaultDuration.Minutes()))
	}
	return s, nil
}

// ParseTemplate decodes a weekday-keyed JSON template, e.g.
// {"1":[{"start":{"hour":10},"end":{"hour":23}}]}. Keys are weekday numbers
// 0 (Sunday) through 6 (Saturday).
func ParseTemplate(raw []byte) (timeslot.WeeklyTemplate, error) {
	var keyed map[string][]timeslot.Window
	if err := json.Unmarshal(raw, &keyed); err != nil {
		return nil, fmt.Errorf("schedule template: %w", err)
	}

	tpl := timeslot.WeeklyTemplate{}
	for key, windows := range keyed {
		n, err := strconv.Atoi(key)
		if err != nil || n < 0 || n > 6 {
			return nil, fmt.Errorf("schedule template: bad weekday key %q", key)
		}
		tpl[time.Weekday(n)] = windows
	}
	return tpl, nil
}

func (s *Settings) AllowsDuration(d time.Duration) bool {
	for _, allowed := range s.AllowedDurations {
		if d == allowed {
			return true
		}
	}
	return false
}

func parseDurations(raw string) ([]time.Duration, error) {
	var out []time.Duration
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mins, err := strconv.Atoi(part)
		if err != nil || mins <= 0 {
			return nil, fmt.Errorf("ALLOWED_DURATIONS_MINUTES: bad entry %q", part)
		}
		out = append(out, time.Duration(mins)*time.Minute)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("ALLOWED_DURATIONS_MINUTES is empty")
	}
	return out, nil
}
