package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/meetwindow/meetwindow/libs/auth"
	"github.com/meetwindow/meetwindow/services/scheduling-service/internal/email"
	"github.com/meetwindow/meetwindow/services/scheduling-service/internal/googlecal"
	"github.com/meetwindow/meetwindow/services/scheduling-service/internal/outbox"
	"github.com/meetwindow/meetwindow/services/scheduling-service/internal/schedule"
	"github.com/meetwindow/meetwindow/services/scheduling-service/internal/storage"
	"github.com/meetwindow/meetwindow/services/scheduling-service/internal/timeslot"
)

// EventCreator inserts a confirmed booking into the owner's calendar.
type EventCreator interface {
	CreateEvent(ctx context.Context, ev googlecal.Event) (string, error)
}

// BookingStore persists confirmed bookings.
type BookingStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, b *storage.Booking) (string, error)
}

// OutboxInserter records domain events in the same transaction as the
// booking row.
type OutboxInserter interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

// Owner identifies the person whose calendar is being booked.
type Owner struct {
	Name  string
	Email string
	Phone string
}

// Links holds the secret and URLs baked into approval links.
type Links struct {
	Secret    string // HMAC key for approval-link signatures
	BaseURL   string // public origin, e.g. https://meet.example.com
	BookedURL string // page the requester lands on after confirmation
}

type BookingHandler struct {
	repo       BookingStore
	outboxRepo OutboxInserter
	calendar   EventCreator
	mail       email.Sender
	settings   *schedule.Settings
	owner      Owner
	links      Links
	logger     *slog.Logger
	now        func() time.Time
}

func NewBookingHandler(repo BookingStore, outboxRepo OutboxInserter, calendar EventCreator, mailSender email.Sender, settings *schedule.Settings, owner Owner, links Links, logger *slog.Logger, now func() time.Time) *BookingHandler {
	if now == nil {
		now = time.Now
	}
	return &BookingHandler{
		repo:       repo,
		outboxRepo: outboxRepo,
		calendar:   calendar,
		mail:       mailSender,
		settings:   settings,
		owner:      owner,
		links:      links,
		logger:     logger,
		now:        now,
	}
}

// appointmentPayload is the JSON document embedded in approval links. The
// signed bytes travel in the link itself, so confirmation needs no pending
// state on the server.
type appointmentPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Start    string `json:"start"`
	End      string `json:"end"`
	TimeZone string `json:"timeZone"`
	Location string `json:"location"`
	Duration string `json:"duration"`
}

// validate checks every field and returns the parsed interval and the
// requester's zone.
func (p *appointmentPayload) validate(settings *schedule.Settings) (timeslot.Interval, *time.Location, error) {
	if strings.TrimSpace(p.Name) == "" {
		return timeslot.Interval{}, nil, fmt.Errorf("name required")
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return timeslot.Interval{}, nil, fmt.Errorf("invalid email")
	}
	start, err := time.Parse(time.RFC3339, p.Start)
	if err != nil {
		return timeslot.Interval{}, nil, fmt.Errorf("invalid start")
	}
	end, err := time.Parse(time.RFC3339, p.End)
	if err != nil {
		return timeslot.Interval{}, nil, fmt.Errorf("invalid end")
	}
	if !end.After(start) {
		return timeslot.Interval{}, nil, fmt.Errorf("end must be after start")
	}
	loc, err := time.LoadLocation(p.TimeZone)
	if err != nil {
		return timeslot.Interval{}, nil, fmt.Errorf("invalid timeZone")
	}
	if p.Location != "meet" && p.Location != "phone" {
		return timeslot.Interval{}, nil, fmt.Errorf("location must be meet or phone")
	}
	mins, err := strconv.Atoi(p.Duration)
	if err != nil || mins <= 0 {
		return timeslot.Interval{}, nil, fmt.Errorf("invalid duration")
	}
	duration := time.Duration(mins) * time.Minute
	if !settings.AllowsDuration(duration) {
		return timeslot.Interval{}, nil, fmt.Errorf("duration not offered")
	}
	if end.Sub(start) != duration {
		return timeslot.Interval{}, nil, fmt.Errorf("interval does not match duration")
	}
	return timeslot.Interval{Start: start.UTC(), End: end.UTC()}, loc, nil
}

// Request accepts a meeting request, mails the owner a signed approval link,
// and acknowledges the requester. Nothing is stored; the request only
// becomes a booking once the owner follows the link.
func (h *BookingHandler) Request(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload appointmentPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	payload.Name = strings.TrimSpace(payload.Name)
	payload.Email = strings.TrimSpace(payload.Email)

	iv, requesterZone, err := payload.validate(h.settings)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !iv.Start.After(h.now()) {
		http.Error(w, "requested time is in the past", http.StatusBadRequest)
		return
	}

	canonical, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "failed to encode request", http.StatusInternalServerError)
		return
	}
	approveURL := fmt.Sprintf("%s/api/v1/confirm?data=%s&key=%s",
		strings.TrimRight(h.links.BaseURL, "/"),
		url.QueryEscape(string(canonical)),
		auth.SignPayload(canonical, h.links.Secret),
	)

	approval := email.Approval(
		h.owner.Email,
		payload.Name, payload.Email,
		payload.Location,
		email.IntervalSummary(iv, h.settings.Timezone),
		payload.TimeZone,
		approveURL,
	)
	if err := h.mail.Send(approval.To, approval.Subject, approval.Body); err != nil {
		h.logger.Error("approval email failed", "err", err)
		http.Error(w, "failed to notify owner", http.StatusBadGateway)
		return
	}

	confirmation := email.Confirmation(payload.Email, payload.Name, email.IntervalSummary(iv, requesterZone))
	if err := h.mail.Send(confirmation.To, confirmation.Subject, confirmation.Body); err != nil {
		// Owner already notified; the request still stands.
		h.logger.Warn("confirmation email failed", "err", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"success":true}`))
}

// eventDescription is the note attendees see on the calendar invite. Phone
// bookings carry the owner's number; meet bookings point at the attached
// conference details.
func (h *BookingHandler) eventDescription(location string) string {
	details := "Details for Google Meet are attached; please let me know if that works or if you'd like to meet using a different provider."
	if location == "phone" {
		details = fmt.Sprintf("My phone number is %s but please let me know if you'd rather I call you.", h.owner.Phone)
	}
	return "Hello, thanks for setting up time!\n\n" + details + "\n\nSee you then!"
}

// Confirm is the target of the approval link. A valid signature creates the
// calendar event, records the booking, and emits the confirmed event through
// the outbox, then redirects the owner to the booked page.
func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data := r.URL.Query().Get("data")
	key := r.URL.Query().Get("key")
	if data == "" {
		http.Error(w, "data is missing", http.StatusBadRequest)
		return
	}
	if err := auth.VerifyPayload([]byte(data), h.links.Secret, key); err != nil {
		http.Error(w, "invalid key", http.StatusForbidden)
		return
	}

	var payload appointmentPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}
	iv, requesterZone, err := payload.validate(h.settings)
	if err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	summary := fmt.Sprintf("%s minute meeting with %s", payload.Duration, h.owner.Name)
	eventURL, err := h.calendar.CreateEvent(ctx, googlecal.Event{
		Start:               iv.Start,
		End:                 iv.End,
		Summary:             summary,
		Description:         h.eventDescription(payload.Location),
		AttendeeEmail:       payload.Email,
		AttendeeName:        payload.Name,
		Location:            payload.Location,
		OwnerPhone:          h.owner.Phone,
		ConferenceRequestID: uuid.NewString(),
	})
	if err != nil {
		h.logger.Error("calendar event insert failed", "err", err)
		http.Error(w, "failed to create calendar event", http.StatusBadGateway)
		return
	}

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	booking := &storage.Booking{
		Name:             payload.Name,
		Email:            payload.Email,
		StartTime:        iv.Start,
		EndTime:          iv.End,
		TimeZone:         payload.TimeZone,
		Location:         payload.Location,
		CalendarEventURL: eventURL,
	}
	id, err := h.repo.Create(ctx, tx, booking)
	if err != nil {
		if storage.IsConflict(err) {
			http.Error(w, "time slot already booked", http.StatusConflict)
			return
		}
		http.Error(w, "failed to record booking", http.StatusInternalServerError)
		return
	}

	evtPayload, err := json.Marshal(map[string]any{
		"booking_id": id,
		"name":       payload.Name,
		"email":      payload.Email,
		"start_time": iv.Start.Format(time.RFC3339),
		"end_time":   iv.End.Format(time.RFC3339),
		"time_zone":  payload.TimeZone,
		"location":   payload.Location,
		"event_url":  eventURL,
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   id,
		EventType:     "scheduling.booking.confirmed.v1",
		Payload:       evtPayload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	booked := email.Booked(payload.Email, payload.Name, email.IntervalSummary(iv, requesterZone), eventURL)
	if err := h.mail.Send(booked.To, booked.Subject, booked.Body); err != nil {
		// The calendar invite already notifies the attendee.
		h.logger.Warn("booked email failed", "err", err)
	}

	http.Redirect(w, r, fmt.Sprintf("%s?url=%s", h.links.BookedURL, url.QueryEscape(eventURL)), http.StatusFound)
}
