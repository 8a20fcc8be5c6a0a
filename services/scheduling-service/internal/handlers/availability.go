package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/meetwindow/meetwindow/services/scheduling-service/internal/schedule"
	"github.com/meetwindow/meetwindow/services/scheduling-service/internal/timeslot"
)

// BusySource yields busy intervals from a remote calendar.
type BusySource interface {
	BusyIntervals(ctx context.Context, window timeslot.Interval, timeZone string) ([]timeslot.Interval, error)
}

// BookedSource yields busy intervals from locally confirmed bookings.
type BookedSource interface {
	ListBookedIntervals(ctx context.Context, start, end time.Time) ([]timeslot.Interval, error)
}

type AvailabilityHandler struct {
	busy     BusySource
	booked   BookedSource
	settings *schedule.Settings
	logger   *slog.Logger
	now      func() time.Time
}

func NewAvailabilityHandler(busy BusySource, booked BookedSource, settings *schedule.Settings, logger *slog.Logger, now func() time.Time) *AvailabilityHandler {
	if now == nil {
		now = time.Now
	}
	return &AvailabilityHandler{
		busy:     busy,
		booked:   booked,
		settings: settings,
		logger:   logger,
		now:      now,
	}
}

type slotItem struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type availabilityResponse struct {
	Slots    []slotItem `json:"slots"`
	Duration int        `json:"duration_minutes"`
	TimeZone string     `json:"time_zone"`
}

// Get resolves open slots for the requested duration over the booking
// window. from/to override the window for testing and deep links; they are
// clamped to the configured horizon.
func (h *AvailabilityHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	now := h.now().UTC()

	duration := h.settings.DefaultDuration
	if raw := strings.TrimSpace(r.URL.Query().Get("duration")); raw != "" {
		mins, err := strconv.Atoi(raw)
		if err != nil || mins <= 0 {
			http.Error(w, "invalid duration", http.StatusBadRequest)
			return
		}
		duration = time.Duration(mins) * time.Minute
	}
	if !h.settings.AllowsDuration(duration) {
		http.Error(w, "duration not offered", http.StatusBadRequest)
		return
	}

	timeZone := strings.TrimSpace(r.URL.Query().Get("timeZone"))
	if timeZone == "" {
		timeZone = "UTC"
	}
	if _, err := time.LoadLocation(timeZone); err != nil {
		http.Error(w, "invalid timeZone", http.StatusBadRequest)
		return
	}

	earliest := timeslot.TodayOffset(now, 0)
	latest := timeslot.TodayOffset(now, h.settings.WindowDays)

	from := earliest
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		d, err := timeslot.ParseDay(raw)
		if err != nil {
			http.Error(w, "invalid from date", http.StatusBadRequest)
			return
		}
		if d.After(from) {
			from = d
		}
	}
	to := latest
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		d, err := timeslot.ParseDay(raw)
		if err != nil {
			http.Error(w, "invalid to date", http.StatusBadRequest)
			return
		}
		if d.Before(to) {
			to = d
		}
	}

	potential := timeslot.PotentialSlots(from, to, duration, h.settings.Template)

	busy, err := h.collectBusy(r.Context(), from, to)
	if err != nil {
		h.logger.Error("busy-time lookup failed", "err", err)
		http.Error(w, "failed to load busy time", http.StatusBadGateway)
		return
	}

	open := timeslot.OpenSlots(potential, busy, h.settings.Padding, h.settings.LeadTime, now)

	items := make([]slotItem, 0, len(open))
	for _, s := range open {
		items = append(items, slotItem{
			Start: s.Start.UTC().Format(time.RFC3339),
			End:   s.End.UTC().Format(time.RFC3339),
		})
	}

	body, err := json.Marshal(availabilityResponse{
		Slots:    items,
		Duration: int(duration.Minutes()),
		TimeZone: timeZone,
	})
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// collectBusy gathers busy time from the remote calendar and confirmed local
// bookings over the owner-zone span of [from, to], merged into canonical
// form. The result is never nil: a calendar with no busy time is an empty
// list, while nil means the data could not be fetched.
func (h *AvailabilityHandler) collectBusy(ctx context.Context, from, to timeslot.Day) ([]timeslot.Interval, error) {
	window := timeslot.Interval{
		Start: from.Interval(h.settings.Timezone).Start,
		End:   to.Interval(h.settings.Timezone).End,
	}

	all := make([]timeslot.Interval, 0)
	if h.busy != nil {
		remote, err := h.busy.BusyIntervals(ctx, window, "UTC")
		if err != nil {
			return nil, err
		}
		all = append(all, remote...)
	}
	if h.booked != nil {
		local, err := h.booked.ListBookedIntervals(ctx, window.Start, window.End)
		if err != nil {
			return nil, err
		}
		all = append(all, local...)
	}

	merged := timeslot.Merge(all)
	if merged == nil {
		merged = make([]timeslot.Interval, 0)
	}
	return merged, nil
}
