// Package googlecal is a thin client for the two Google Calendar calls the
// service needs: the freeBusy query that feeds the availability engine, and
// event insertion when a booking is confirmed.
package googlecal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/meetwindow/meetwindow/services/scheduling-service/internal/timeslot"
)

const (
	defaultTokenURL = "https://oauth2.googleapis.com/token"
	defaultBaseURL  = "https://www.googleapis.com/calendar/v3"
)

type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	CalendarIDs  []string // calendars consulted for busy time; "primary" if empty

	// TokenURL and BaseURL exist so tests can point the client at a local
	// server. Production wiring leaves them empty.
	TokenURL string
	BaseURL  string

	HTTPClient *http.Client
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func New(cfg Config) *Client {
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if len(cfg.CalendarIDs) == 0 {
		cfg.CalendarIDs = []string{"primary"}
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

// accessToken trades the long-lived refresh token for a short-lived access
// token. Tokens are not cached; both calls that need one are rare.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"refresh_token": {c.cfg.RefreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access token (status %d)", resp.StatusCode)
	}
	return payload.AccessToken, nil
}

// BusyIntervals queries freeBusy for every configured calendar across the
// window and returns the raw busy intervals. Callers own merging; the list
// may contain overlaps between calendars.
func (c *Client) BusyIntervals(ctx context.Context, window timeslot.Interval, timeZone string) ([]timeslot.Interval, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]string, 0, len(c.cfg.CalendarIDs))
	for _, id := range c.cfg.CalendarIDs {
		items = append(items, map[string]string{"id": id})
	}
	body, err := json.Marshal(map[string]any{
		"timeMin":  window.Start.Format(time.RFC3339),
		"timeMax":  window.End.Format(time.RFC3339),
		"timeZone": timeZone,
		"items":    items,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/freeBusy", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("freeBusy query failed with status %d", resp.StatusCode)
	}

	var payload struct {
		Calendars map[string]struct {
			Busy []struct {
				Start time.Time `json:"start"`
				End   time.Time `json:"end"`
			} `json:"busy"`
		} `json:"calendars"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("freeBusy response: %w", err)
	}

	busy := make([]timeslot.Interval, 0)
	for _, cal := range payload.Calendars {
		for _, b := range cal.Busy {
			busy = append(busy, timeslot.Interval{Start: b.Start, End: b.End})
		}
	}
	return busy, nil
}

// Event describes the calendar entry created for a confirmed booking.
type Event struct {
	Start         time.Time
	End           time.Time
	Summary       string
	Description   string
	AttendeeEmail string
	AttendeeName  string

	// Location is "phone" or "meet". Phone bookings carry the owner's
	// number as the event location; meet bookings request a conference.
	Location            string
	OwnerPhone          string
	ConferenceRequestID string
}

// CreateEvent inserts the event into the primary calendar with attendee
// notifications enabled and returns the event's htmlLink.
func (c *Client) CreateEvent(ctx context.Context, ev Event) (string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	body := map[string]any{
		"start":       map[string]string{"dateTime": ev.Start.Format(time.RFC3339)},
		"end":         map[string]string{"dateTime": ev.End.Format(time.RFC3339)},
		"summary":     ev.Summary,
		"description": ev.Description,
		"attendees": []map[string]string{
			{"email": ev.AttendeeEmail, "displayName": ev.AttendeeName},
		},
	}
	if ev.Location == "phone" {
		body["location"] = ev.OwnerPhone
	} else {
		body["conferenceData"] = map[string]any{
			"createRequest": map[string]any{
				"requestId":             ev.ConferenceRequestID,
				"conferenceSolutionKey": map[string]string{"type": "hangoutsMeet"},
			},
		}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	endpoint := c.cfg.BaseURL + "/calendars/primary/events?sendNotifications=true&conferenceDataVersion=1"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("event insert failed with status %d", resp.StatusCode)
	}

	var payload struct {
		HTMLLink string `json:"htmlLink"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("event response: %w", err)
	}
	if payload.HTMLLink == "" {
		return "", fmt.Errorf("event insert returned no htmlLink")
	}
	return payload.HTMLLink, nil
}
