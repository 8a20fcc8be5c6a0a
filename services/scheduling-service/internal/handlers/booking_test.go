package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/meetwindow/meetwindow/libs/auth"
	"github.com/meetwindow/meetwindow/services/scheduling-service/internal/googlecal"
	"github.com/meetwindow/meetwindow/services/scheduling-service/internal/outbox"
	"github.com/meetwindow/meetwindow/services/scheduling-service/internal/storage"
)

// fakeTx satisfies pgx.Tx for the handful of calls the handler makes.
type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (tx *fakeTx) Commit(context.Context) error   { tx.committed = true; return nil }
func (tx *fakeTx) Rollback(context.Context) error { tx.rolledBack = true; return nil }

type fakeStore struct {
	tx       fakeTx
	bookings []*storage.Booking
	id       string
	err      error
}

func (s *fakeStore) Begin(context.Context) (pgx.Tx, error) {
	return &s.tx, nil
}

func (s *fakeStore) Create(_ context.Context, _ pgx.Tx, b *storage.Booking) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.bookings = append(s.bookings, b)
	return s.id, nil
}

type fakeOutbox struct {
	events []outbox.Event
}

func (o *fakeOutbox) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	o.events = append(o.events, evt)
	return nil
}

type sentMail struct {
	to      string
	subject string
	body    string
}

type captureSender struct {
	sent []sentMail
	err  error
}

func (c *captureSender) Send(to, subject, body string) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

type fakeCalendar struct {
	created []googlecal.Event
	link    string
	err     error
}

func (f *fakeCalendar) CreateEvent(_ context.Context, ev googlecal.Event) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.created = append(f.created, ev)
	return f.link, nil
}

func testLinks() Links {
	return Links{
		Secret:    "test-secret",
		BaseURL:   "https://meet.example.com",
		BookedURL: "https://meet.example.com/booked",
	}
}

func testOwner() Owner {
	return Owner{Name: "Sam", Email: "owner@example.com", Phone: "+1 555 0100"}
}

func validRequestBody() string {
	return `{
		"name": "Ada",
		"email": "ada@example.com",
		"start": "2026-09-01T10:00:00Z",
		"end": "2026-09-01T11:00:00Z",
		"timeZone": "America/New_York",
		"location": "meet",
		"duration": "60"
	}`
}

func newRequestHandler(mail *captureSender) *BookingHandler {
	return NewBookingHandler(nil, nil, &fakeCalendar{}, mail, testSettings(), testOwner(), testLinks(), discardLogger(), func() time.Time { return fixedNow })
}

func TestRequest_SendsApprovalAndConfirmation(t *testing.T) {
	mail := &captureSender{}
	h := newRequestHandler(mail)

	rec := httptest.NewRecorder()
	h.Request(rec, httptest.NewRequest(http.MethodPost, "/api/v1/request", strings.NewReader(validRequestBody())))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"success":true}` {
		t.Fatalf("body = %s", got)
	}

	if len(mail.sent) != 2 {
		t.Fatalf("sent %d emails, want 2", len(mail.sent))
	}
	approval := mail.sent[0]
	if approval.to != "owner@example.com" {
		t.Fatalf("approval went to %s", approval.to)
	}
	if !strings.Contains(approval.subject, "Ada") {
		t.Fatalf("approval subject = %q", approval.subject)
	}
	if mail.sent[1].to != "ada@example.com" {
		t.Fatalf("confirmation went to %s", mail.sent[1].to)
	}
}

func TestRequest_ApprovalLinkVerifies(t *testing.T) {
	mail := &captureSender{}
	h := newRequestHandler(mail)

	rec := httptest.NewRecorder()
	h.Request(rec, httptest.NewRequest(http.MethodPost, "/api/v1/request", strings.NewReader(validRequestBody())))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	// Pull the approve URL out of the owner email and check its signature
	// the same way Confirm will.
	var approveURL string
	for _, line := range strings.Split(mail.sent[0].body, "\n") {
		if strings.HasPrefix(line, "https://") {
			approveURL = line
			break
		}
	}
	if approveURL == "" {
		t.Fatalf("no approve URL in body:\n%s", mail.sent[0].body)
	}
	parsed, err := url.Parse(approveURL)
	if err != nil {
		t.Fatalf("bad approve URL %q: %v", approveURL, err)
	}
	data := parsed.Query().Get("data")
	key := parsed.Query().Get("key")
	if err := auth.VerifyPayload([]byte(data), testLinks().Secret, key); err != nil {
		t.Fatalf("approval link signature does not verify: %v", err)
	}

	var payload appointmentPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		t.Fatalf("link payload is not valid JSON: %v", err)
	}
	if payload.Email != "ada@example.com" || payload.Duration != "60" {
		t.Fatalf("link payload = %+v", payload)
	}
}

func TestRequest_Validation(t *testing.T) {
	cases := map[string]string{
		"missing name":     `{"email":"a@b.co","start":"2026-09-01T10:00:00Z","end":"2026-09-01T11:00:00Z","timeZone":"UTC","location":"meet","duration":"60"}`,
		"bad email":        `{"name":"A","email":"nope","start":"2026-09-01T10:00:00Z","end":"2026-09-01T11:00:00Z","timeZone":"UTC","location":"meet","duration":"60"}`,
		"bad start":        `{"name":"A","email":"a@b.co","start":"tomorrow","end":"2026-09-01T11:00:00Z","timeZone":"UTC","location":"meet","duration":"60"}`,
		"inverted":         `{"name":"A","email":"a@b.co","start":"2026-09-01T11:00:00Z","end":"2026-09-01T10:00:00Z","timeZone":"UTC","location":"meet","duration":"60"}`,
		"bad zone":         `{"name":"A","email":"a@b.co","start":"2026-09-01T10:00:00Z","end":"2026-09-01T11:00:00Z","timeZone":"Mars/Olympus","location":"meet","duration":"60"}`,
		"bad location":     `{"name":"A","email":"a@b.co","start":"2026-09-01T10:00:00Z","end":"2026-09-01T11:00:00Z","timeZone":"UTC","location":"office","duration":"60"}`,
		"odd duration":     `{"name":"A","email":"a@b.co","start":"2026-09-01T10:00:00Z","end":"2026-09-01T11:00:00Z","timeZone":"UTC","location":"meet","duration":"45"}`,
		"length mismatch":  `{"name":"A","email":"a@b.co","start":"2026-09-01T10:00:00Z","end":"2026-09-01T10:30:00Z","timeZone":"UTC","location":"meet","duration":"60"}`,
		"past start":       `{"name":"A","email":"a@b.co","start":"2026-08-30T10:00:00Z","end":"2026-08-30T11:00:00Z","timeZone":"UTC","location":"meet","duration":"60"}`,
		"not json":         `name=Ada`,
	}
	for name, body := range cases {
		mail := &captureSender{}
		h := newRequestHandler(mail)
		rec := httptest.NewRecorder()
		h.Request(rec, httptest.NewRequest(http.MethodPost, "/api/v1/request", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, rec.Code)
		}
		if len(mail.sent) != 0 {
			t.Errorf("%s: sent %d emails, want none", name, len(mail.sent))
		}
	}
}

func TestRequest_OwnerMailFailureIsBadGateway(t *testing.T) {
	mail := &captureSender{err: errors.New("smtp down")}
	h := newRequestHandler(mail)
	rec := httptest.NewRecorder()
	h.Request(rec, httptest.NewRequest(http.MethodPost, "/api/v1/request", strings.NewReader(validRequestBody())))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func signedConfirmTarget(t *testing.T, payload string, secret string) string {
	t.Helper()
	return "/api/v1/confirm?data=" + url.QueryEscape(payload) + "&key=" + auth.SignPayload([]byte(payload), secret)
}

func TestConfirm_RejectsBadSignature(t *testing.T) {
	h := NewBookingHandler(nil, nil, &fakeCalendar{}, &captureSender{}, testSettings(), testOwner(), testLinks(), discardLogger(), func() time.Time { return fixedNow })

	rec := httptest.NewRecorder()
	target := signedConfirmTarget(t, validRequestBody(), "wrong-secret")
	h.Confirm(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestConfirm_RejectsMissingData(t *testing.T) {
	h := NewBookingHandler(nil, nil, &fakeCalendar{}, &captureSender{}, testSettings(), testOwner(), testLinks(), discardLogger(), func() time.Time { return fixedNow })
	rec := httptest.NewRecorder()
	h.Confirm(rec, httptest.NewRequest(http.MethodGet, "/api/v1/confirm", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestConfirm_RejectsTamperedPayload(t *testing.T) {
	h := NewBookingHandler(nil, nil, &fakeCalendar{}, &captureSender{}, testSettings(), testOwner(), testLinks(), discardLogger(), func() time.Time { return fixedNow })

	// Signed correctly, but the payload itself fails validation.
	bad := `{"name":"A","email":"a@b.co","start":"2026-09-01T10:00:00Z","end":"2026-09-01T11:00:00Z","timeZone":"UTC","location":"office","duration":"60"}`
	rec := httptest.NewRecorder()
	h.Confirm(rec, httptest.NewRequest(http.MethodGet, signedConfirmTarget(t, bad, testLinks().Secret), nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestConfirm_CalendarFailureIsBadGateway(t *testing.T) {
	calendar := &fakeCalendar{err: errors.New("google down")}
	h := NewBookingHandler(nil, nil, calendar, &captureSender{}, testSettings(), testOwner(), testLinks(), discardLogger(), func() time.Time { return fixedNow })

	rec := httptest.NewRecorder()
	h.Confirm(rec, httptest.NewRequest(http.MethodGet, signedConfirmTarget(t, validRequestBody(), testLinks().Secret), nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestConfirm_HappyPath(t *testing.T) {
	calendar := &fakeCalendar{link: "https://calendar.google.com/event?eid=abc"}
	store := &fakeStore{id: "booking-1"}
	ob := &fakeOutbox{}
	mail := &captureSender{}
	h := NewBookingHandler(store, ob, calendar, mail, testSettings(), testOwner(), testLinks(), discardLogger(), func() time.Time { return fixedNow })

	rec := httptest.NewRecorder()
	h.Confirm(rec, httptest.NewRequest(http.MethodGet, signedConfirmTarget(t, validRequestBody(), testLinks().Secret), nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302: %s", rec.Code, rec.Body.String())
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "https://meet.example.com/booked?url=") {
		t.Fatalf("redirect to %q", loc)
	}

	if len(calendar.created) != 1 {
		t.Fatalf("created %d events, want 1", len(calendar.created))
	}
	ev := calendar.created[0]
	if ev.Summary != "60 minute meeting with Sam" {
		t.Fatalf("summary = %q", ev.Summary)
	}
	if ev.AttendeeEmail != "ada@example.com" || ev.Location != "meet" {
		t.Fatalf("event = %+v", ev)
	}
	if ev.ConferenceRequestID == "" {
		t.Fatal("conference request id should be set")
	}
	if !strings.Contains(ev.Description, "Google Meet") {
		t.Fatalf("meet booking description = %q", ev.Description)
	}
	if !ev.Start.Equal(time.Date(2026, time.September, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("event starts %s", ev.Start)
	}

	if len(store.bookings) != 1 {
		t.Fatalf("stored %d bookings, want 1", len(store.bookings))
	}
	b := store.bookings[0]
	if b.Email != "ada@example.com" || b.CalendarEventURL != calendar.link {
		t.Fatalf("booking = %+v", b)
	}
	if !store.tx.committed {
		t.Fatal("transaction was not committed")
	}

	if len(ob.events) != 1 {
		t.Fatalf("wrote %d outbox events, want 1", len(ob.events))
	}
	evt := ob.events[0]
	if evt.EventType != "scheduling.booking.confirmed.v1" || evt.AggregateID != "booking-1" {
		t.Fatalf("outbox event = %+v", evt)
	}
	var payload map[string]any
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		t.Fatalf("outbox payload: %v", err)
	}
	if payload["start_time"] != "2026-09-01T10:00:00Z" {
		t.Fatalf("outbox start_time = %v", payload["start_time"])
	}

	// Confirmed-booking mail to the requester.
	if len(mail.sent) != 1 || mail.sent[0].to != "ada@example.com" {
		t.Fatalf("sent = %+v", mail.sent)
	}
}

func TestConfirm_PhoneBookingDescribesOwnerNumber(t *testing.T) {
	calendar := &fakeCalendar{link: "https://calendar.google.com/event?eid=abc"}
	store := &fakeStore{id: "booking-2"}
	h := NewBookingHandler(store, &fakeOutbox{}, calendar, &captureSender{}, testSettings(), testOwner(), testLinks(), discardLogger(), func() time.Time { return fixedNow })

	body := strings.Replace(validRequestBody(), `"meet"`, `"phone"`, 1)
	rec := httptest.NewRecorder()
	h.Confirm(rec, httptest.NewRequest(http.MethodGet, signedConfirmTarget(t, body, testLinks().Secret), nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(calendar.created) != 1 {
		t.Fatalf("created %d events, want 1", len(calendar.created))
	}
	ev := calendar.created[0]
	if ev.Location != "phone" {
		t.Fatalf("event location = %q", ev.Location)
	}
	if !strings.Contains(ev.Description, testOwner().Phone) {
		t.Fatalf("phone booking description = %q", ev.Description)
	}
}

func TestConfirm_OverlapIsConflict(t *testing.T) {
	calendar := &fakeCalendar{link: "https://calendar.google.com/event?eid=abc"}
	store := &fakeStore{err: &pgconn.PgError{Code: "23P01"}}
	h := NewBookingHandler(store, &fakeOutbox{}, calendar, &captureSender{}, testSettings(), testOwner(), testLinks(), discardLogger(), func() time.Time { return fixedNow })

	rec := httptest.NewRecorder()
	h.Confirm(rec, httptest.NewRequest(http.MethodGet, signedConfirmTarget(t, validRequestBody(), testLinks().Secret), nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}
