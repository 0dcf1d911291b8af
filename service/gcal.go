package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/jwt"

	"github.com/linanwx/milo/logger"
)

const (
	calendarAPIBase = "https://www.googleapis.com/calendar/v3"
	calendarScope   = "https://www.googleapis.com/auth/calendar.events"
	googleTokenURL  = "https://oauth2.googleapis.com/token"
)

// EventInput describes a calendar event to create. Dates are
// "YYYY-MM-DD" and times "HH:MM"; an empty StartTime makes an all-day
// event.
type EventInput struct {
	Title       string
	StartDate   string
	StartTime   string
	EndDate     string
	EndTime     string
	Location    string
	Description string
}

// CreatedEvent is the subset of the created resource callers use.
type CreatedEvent struct {
	ID       string `json:"id"`
	HTMLLink string `json:"htmlLink"`
}

// GoogleCalendar inserts events into one calendar using a service
// account key file.
type GoogleCalendar struct {
	calendarID string
	timezone   string
	baseURL    string
	tokens     oauth2.TokenSource
	rest       *resty.Client
}

type serviceAccountKey struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// NewGoogleCalendar loads the service account key and returns a client
// for calendarID. Timed events are created in timezone, defaulting to
// America/New_York.
func NewGoogleCalendar(keyFile, calendarID, timezone string) (*GoogleCalendar, error) {
	data, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("read service account key: %w", err)
	}
	var key serviceAccountKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}
	if key.ClientEmail == "" || key.PrivateKey == "" {
		return nil, fmt.Errorf("service account key missing client_email or private_key")
	}
	tokenURL := key.TokenURI
	if tokenURL == "" {
		tokenURL = googleTokenURL
	}
	conf := &jwt.Config{
		Email:      key.ClientEmail,
		PrivateKey: []byte(key.PrivateKey),
		Scopes:     []string{calendarScope},
		TokenURL:   tokenURL,
	}
	if timezone == "" {
		timezone = "America/New_York"
	}
	return &GoogleCalendar{
		calendarID: calendarID,
		timezone:   timezone,
		baseURL:    calendarAPIBase,
		tokens:     conf.TokenSource(context.Background()),
		rest:       resty.New().SetTimeout(15 * time.Second),
	}, nil
}

// CreateEvent inserts the event. Timed events without an end default to
// one hour.
func (g *GoogleCalendar) CreateEvent(ctx context.Context, in *EventInput) (*CreatedEvent, error) {
	body := map[string]any{"summary": in.Title}
	if in.Location != "" {
		body["location"] = in.Location
	}
	if in.Description != "" {
		body["description"] = in.Description
	}

	if in.StartTime != "" {
		start := in.StartDate + "T" + in.StartTime + ":00"
		body["start"] = map[string]string{"dateTime": start, "timeZone": g.timezone}

		var end string
		switch {
		case in.EndDate != "" && in.EndTime != "":
			end = in.EndDate + "T" + in.EndTime + ":00"
		case in.EndTime != "":
			end = in.StartDate + "T" + in.EndTime + ":00"
		default:
			t, err := time.Parse("2006-01-02T15:04:05", start)
			if err != nil {
				return nil, fmt.Errorf("bad event start %q: %w", start, err)
			}
			end = t.Add(time.Hour).Format("2006-01-02T15:04:05")
		}
		body["end"] = map[string]string{"dateTime": end, "timeZone": g.timezone}
	} else {
		body["start"] = map[string]string{"date": in.StartDate}
		endDate := in.EndDate
		if endDate == "" {
			endDate = in.StartDate
		}
		body["end"] = map[string]string{"date": endDate}
	}

	token, err := g.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("calendar token: %w", err)
	}

	var out CreatedEvent
	resp, err := g.rest.R().
		SetContext(ctx).
		SetAuthToken(token.AccessToken).
		SetBody(body).
		SetResult(&out).
		Post(fmt.Sprintf("%s/calendars/%s/events", g.baseURL, url.PathEscape(g.calendarID)))
	if err != nil {
		return nil, fmt.Errorf("calendar create: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("calendar create: status %s: %s", resp.Status(), respSnippet(resp))
	}
	logger.Info("calendar event created", "title", in.Title, "link", out.HTMLLink)
	return &out, nil
}

func respSnippet(resp *resty.Response) string {
	body := strings.TrimSpace(string(resp.Body()))
	if len(body) > 200 {
		body = body[:200]
	}
	return body
}
