// Package google implements the calendar client against the Google
// Calendar v3 REST API using oauth2 credentials.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/qzwhatnext/qzwhatnext/internal/calendar/domain"
	shareddomain "github.com/qzwhatnext/qzwhatnext/internal/shared/domain"
)

const baseURL = "https://www.googleapis.com/calendar/v3"

// Client talks to one Google calendar on behalf of one user.
type Client struct {
	httpClient *http.Client
	calendarID string
}

// NewClient builds a client over an oauth2 token source.
func NewClient(ctx context.Context, source oauth2.TokenSource, calendarID string) *Client {
	return &Client{
		httpClient: oauth2.NewClient(ctx, source),
		calendarID: calendarID,
	}
}

type wireEventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type wireEvent struct {
	ID                 string        `json:"id,omitempty"`
	Etag               string        `json:"etag,omitempty"`
	Status             string        `json:"status,omitempty"`
	Summary            string        `json:"summary,omitempty"`
	Description        string        `json:"description,omitempty"`
	Start              wireEventTime `json:"start,omitempty"`
	End                wireEventTime `json:"end,omitempty"`
	Transparency       string        `json:"transparency,omitempty"`
	Updated            string        `json:"updated,omitempty"`
	ExtendedProperties *struct {
		Private map[string]string `json:"private,omitempty"`
	} `json:"extendedProperties,omitempty"`
}

type wireEventList struct {
	Items         []wireEvent `json:"items"`
	NextPageToken string      `json:"nextPageToken"`
}

func (c *Client) ListEvents(ctx context.Context, from, to time.Time) ([]domain.Event, error) {
	var out []domain.Event
	pageToken := ""
	for {
		params := url.Values{}
		params.Set("timeMin", from.UTC().Format(time.RFC3339))
		params.Set("timeMax", to.UTC().Format(time.RFC3339))
		params.Set("singleEvents", "true")
		params.Set("maxResults", "250")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var list wireEventList
		if err := c.do(ctx, http.MethodGet, c.eventsURL("")+"?"+params.Encode(), "", nil, &list); err != nil {
			return nil, err
		}
		for _, item := range list.Items {
			event, ok := fromWire(item)
			if !ok {
				continue
			}
			out = append(out, event)
		}
		if list.NextPageToken == "" {
			return out, nil
		}
		pageToken = list.NextPageToken
	}
}

func (c *Client) Insert(ctx context.Context, event domain.Event) (domain.Event, error) {
	var created wireEvent
	if err := c.do(ctx, http.MethodPost, c.eventsURL(""), "", toWire(event), &created); err != nil {
		return domain.Event{}, err
	}
	result, _ := fromWire(created)
	return result, nil
}

func (c *Client) Patch(ctx context.Context, eventID, etag string, event domain.Event) (domain.Event, error) {
	var patched wireEvent
	if err := c.do(ctx, http.MethodPatch, c.eventsURL(eventID), etag, toWire(event), &patched); err != nil {
		return domain.Event{}, err
	}
	result, _ := fromWire(patched)
	return result, nil
}

func (c *Client) Delete(ctx context.Context, eventID string) error {
	return c.do(ctx, http.MethodDelete, c.eventsURL(eventID), "", nil, nil)
}

func (c *Client) eventsURL(eventID string) string {
	u := fmt.Sprintf("%s/calendars/%s/events", baseURL, url.PathEscape(c.calendarID))
	if eventID != "" {
		u += "/" + url.PathEscape(eventID)
	}
	return u
}

func (c *Client) do(ctx context.Context, method, rawURL, etag string, body, out any) error {
	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode calendar request: %w", err)
		}
		payload = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, payload)
	if err != nil {
		return fmt.Errorf("failed to build calendar request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if etag != "" {
		req.Header.Set("If-Match", etag)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return shareddomain.NewKindError(shareddomain.KindAvailabilityUnavailable, "calendar_request_failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return shareddomain.NewKindError(shareddomain.KindUnauthorized, "calendar_access_denied", nil)
	case resp.StatusCode == http.StatusPreconditionFailed || resp.StatusCode == http.StatusConflict:
		return shareddomain.NewKindError(shareddomain.KindSyncConflict, "event_version_mismatch", nil)
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrEventNotFound
	case resp.StatusCode == http.StatusGone:
		return domain.ErrEventNotFound
	case resp.StatusCode >= 400:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("calendar request failed: %s: %s", resp.Status, detail)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode calendar response: %w", err)
	}
	return nil
}

func toWire(event domain.Event) wireEvent {
	w := wireEvent{
		Summary:     event.Summary,
		Description: event.Description,
		Start:       wireEventTime{DateTime: event.Start.UTC().Format(time.RFC3339)},
		End:         wireEventTime{DateTime: event.End.UTC().Format(time.RFC3339)},
	}
	if event.BlockID != nil {
		w.ExtendedProperties = &struct {
			Private map[string]string `json:"private,omitempty"`
		}{Private: map[string]string{domain.ManagedBlockProperty: event.BlockID.String()}}
	}
	return w
}

// fromWire converts an API event. Transparent events (marked Free, the
// default for all-day entries) are skipped; opaque all-day events become
// midnight-to-midnight reservations in the event's timezone.
func fromWire(w wireEvent) (domain.Event, bool) {
	if w.Transparency == "transparent" {
		return domain.Event{}, false
	}
	start, end, ok := wireInterval(w.Start, w.End)
	if !ok {
		return domain.Event{}, false
	}

	event := domain.Event{
		ID:          w.ID,
		Etag:        w.Etag,
		Summary:     w.Summary,
		Description: w.Description,
		Start:       start,
		End:         end,
		Cancelled:   w.Status == "cancelled",
	}
	if updated, err := time.Parse(time.RFC3339, w.Updated); err == nil {
		event.Updated = updated
	}
	if w.ExtendedProperties != nil {
		if raw, ok := w.ExtendedProperties.Private[domain.ManagedBlockProperty]; ok {
			if id, err := uuid.Parse(raw); err == nil {
				event.BlockID = &id
			}
		}
	}
	return event, true
}

// wireInterval resolves an event's bounds: timed events carry dateTime,
// all-day events carry date bounds at midnight in the event's timezone
// (the end date is already exclusive on the wire).
func wireInterval(start, end wireEventTime) (time.Time, time.Time, bool) {
	if start.DateTime != "" {
		s, err := time.Parse(time.RFC3339, start.DateTime)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		e, err := time.Parse(time.RFC3339, end.DateTime)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		return s, e, true
	}
	if start.Date == "" || end.Date == "" {
		return time.Time{}, time.Time{}, false
	}
	loc := time.UTC
	if start.TimeZone != "" {
		if l, err := time.LoadLocation(start.TimeZone); err == nil {
			loc = l
		}
	}
	s, err := time.ParseInLocation("2006-01-02", start.Date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	e, err := time.ParseInLocation("2006-01-02", end.Date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return s, e, true
}
