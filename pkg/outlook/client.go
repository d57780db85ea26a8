package outlook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/klokku/outlook-calendar/pkg/calendar"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2/microsoft"
)

const (
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"
	CalendarsScope = "Calendars.Read"

	// Graph expects calendarView bounds without a zone designator; with the
	// UTC preference header they are interpreted as UTC.
	graphTimeFormat = "2006-01-02T15:04:05"
	maxBodyLength   = 4096
)

// Endpoint is the Microsoft identity platform endpoint for work, school and
// personal accounts.
var Endpoint = microsoft.AzureADEndpoint("common")

var Scopes = []string{CalendarsScope}

type graphCalendar struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphLocation struct {
	DisplayName string `json:"displayName"`
}

type graphEvent struct {
	Subject  string        `json:"subject"`
	Start    graphDateTime `json:"start"`
	End      graphDateTime `json:"end"`
	ShowAs   string        `json:"showAs"`
	Location graphLocation `json:"location"`
	IsAllDay bool          `json:"isAllDay"`
}

// Client reads calendars and events from Microsoft Graph. The http client is
// expected to authorize requests, see oauth.Client.HTTPClient.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient(httpClient *http.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

func (c *Client) ListCalendars(ctx context.Context) ([]calendar.Descriptor, error) {
	log.Debug("Retrieving calendars from Microsoft Graph")

	var calendars []calendar.Descriptor
	next := c.baseURL + "/me/calendars"
	for next != "" {
		var page struct {
			Value    []graphCalendar `json:"value"`
			NextLink string          `json:"@odata.nextLink"`
		}
		if err := c.get(ctx, next, &page); err != nil {
			log.Errorf("unable to get calendars: %v", err)
			return nil, err
		}
		for _, cal := range page.Value {
			calendars = append(calendars, calendar.Descriptor{Id: cal.Id, Name: cal.Name})
		}
		next = page.NextLink
	}
	return calendars, nil
}

func (c *Client) ListEvents(ctx context.Context, calendarId string, start time.Time, end time.Time, maxResults int, filter string) ([]calendar.Event, error) {
	query := url.Values{}
	query.Set("startDateTime", start.UTC().Format(graphTimeFormat))
	query.Set("endDateTime", end.UTC().Format(graphTimeFormat))
	query.Set("$select", "subject,start,end,showAs,location,isAllDay")
	query.Set("$orderby", "end/dateTime")
	if maxResults > 0 {
		query.Set("$top", fmt.Sprintf("%d", maxResults))
	}
	if filter != "" {
		query.Set("$filter", filter)
	}
	requestURL := fmt.Sprintf("%s/me/calendars/%s/calendarView?%s", c.baseURL, url.PathEscape(calendarId), query.Encode())
	log.Debugf("Retrieving events of calendar %s between %s and %s", calendarId, start.Format(time.RFC3339), end.Format(time.RFC3339))

	var response struct {
		Value []graphEvent `json:"value"`
	}
	if err := c.get(ctx, requestURL, &response); err != nil {
		log.Errorf("unable to get calendar events: %v", err)
		return nil, err
	}

	events := make([]calendar.Event, 0, len(response.Value))
	for _, item := range response.Value {
		event, err := toEvent(item)
		if err != nil {
			log.Warnf("skipping event %q with unreadable time: %v", item.Subject, err)
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func (c *Client) get(ctx context.Context, requestURL string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The cause stays reachable, token errors included.
		return &calendar.UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyLength))
		return &calendar.UpstreamError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Err:        fmt.Errorf("graph API returned status %d", resp.StatusCode),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return &calendar.UpstreamError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("failed to decode response: %w", err),
		}
	}
	return nil
}

func toEvent(item graphEvent) (calendar.Event, error) {
	start, err := parseGraphTime(item.Start)
	if err != nil {
		return calendar.Event{}, err
	}
	end, err := parseGraphTime(item.End)
	if err != nil {
		return calendar.Event{}, err
	}
	return calendar.Event{
		Description:  item.Subject,
		Start:        start,
		End:          end,
		Location:     item.Location.DisplayName,
		AllDay:       item.IsAllDay,
		Availability: toAvailability(item.ShowAs),
	}, nil
}

func parseGraphTime(dt graphDateTime) (time.Time, error) {
	loc := time.UTC
	if dt.TimeZone != "" && dt.TimeZone != "UTC" {
		l, err := time.LoadLocation(dt.TimeZone)
		if err != nil {
			log.Debugf("unknown time zone %q, assuming UTC", dt.TimeZone)
		} else {
			loc = l
		}
	}
	// Graph returns up to seven fractional digits without a zone designator.
	t, err := time.ParseInLocation("2006-01-02T15:04:05.9999999", dt.DateTime, loc)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func toAvailability(showAs string) calendar.Availability {
	switch strings.ToLower(showAs) {
	case "free":
		return calendar.AvailabilityFree
	case "busy":
		return calendar.AvailabilityBusy
	case "tentative":
		return calendar.AvailabilityTentative
	case "oof":
		return calendar.AvailabilityOof
	case "workingelsewhere":
		return calendar.AvailabilityWorkingElsewhere
	default:
		return calendar.AvailabilityUnknown
	}
}
