package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/klokku/outlook-calendar/pkg/calendar"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

var Endpoint = google.Endpoint

var Scopes = []string{gcal.CalendarReadonlyScope}

// OfflineOptions make Google issue a refresh token on every consent.
var OfflineOptions = []oauth2.AuthCodeOption{oauth2.AccessTypeOffline, oauth2.ApprovalForce}

// Client reads calendars and events through the Google Calendar API.
type Client struct {
	service *gcal.Service
}

// NewClient builds the API service on top of an already authorized http
// client, see oauth.Client.HTTPClient.
func NewClient(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		err := fmt.Errorf("unable to create Google Calendar service: %v", err)
		log.Error(err)
		return nil, err
	}
	return &Client{service: service}, nil
}

func (c *Client) ListCalendars(ctx context.Context) ([]calendar.Descriptor, error) {
	var calendars []calendar.Descriptor
	err := c.service.CalendarList.List().Context(ctx).Pages(ctx, func(list *gcal.CalendarList) error {
		for _, cal := range list.Items {
			calendars = append(calendars, calendar.Descriptor{
				Id:   cal.Id,
				Name: cal.Summary,
			})
		}
		return nil
	})
	if err != nil {
		err := toUpstreamError(err)
		log.Errorf("unable to retrieve calendars from Google Calendar: %v", err)
		return nil, err
	}
	return calendars, nil
}

func (c *Client) ListEvents(ctx context.Context, calendarId string, start time.Time, end time.Time, maxResults int, filter string) ([]calendar.Event, error) {
	call := c.service.Events.List(calendarId).
		Context(ctx).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime")
	if maxResults > 0 {
		call = call.MaxResults(int64(maxResults))
	}
	if filter != "" {
		call = call.Q(filter)
	}

	googleEvents, err := call.Do()
	if err != nil {
		err := toUpstreamError(err)
		log.Errorf("unable to retrieve events from Google Calendar: %v", err)
		return nil, err
	}

	events := googleEventsToEvents(googleEvents.Items)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].End.Before(events[j].End)
	})
	return events, nil
}

func googleEventsToEvents(googleEvents []*gcal.Event) []calendar.Event {
	events := make([]calendar.Event, 0, len(googleEvents))
	for _, item := range googleEvents {
		if item.Start == nil || item.End == nil {
			log.Warnf("found calendar event without start or end - ignoring: %s", item.Summary)
			continue
		}
		startTime, err := parseEventDateTime(item.Start)
		if err != nil {
			log.Warnf("found calendar event with invalid start - ignoring: %s (%v)", item.Summary, err)
			continue
		}
		endTime, err := parseEventDateTime(item.End)
		if err != nil {
			log.Warnf("found calendar event with invalid end - ignoring: %s (%v)", item.Summary, err)
			continue
		}

		events = append(events, calendar.Event{
			Description:  item.Summary,
			Start:        startTime,
			End:          endTime,
			Location:     item.Location,
			AllDay:       item.Start.Date != "",
			Availability: toAvailability(item.Transparency),
		})
	}
	return events
}

// parseEventDateTime reads either a timed value or an all-day date. All-day
// dates are placed at midnight in the event's time zone, UTC when unknown.
func parseEventDateTime(dt *gcal.EventDateTime) (time.Time, error) {
	if dt.DateTime != "" {
		return time.Parse(time.RFC3339, dt.DateTime)
	}
	loc := time.UTC
	if dt.TimeZone != "" {
		if l, err := time.LoadLocation(dt.TimeZone); err == nil {
			loc = l
		}
	}
	return time.ParseInLocation(time.DateOnly, dt.Date, loc)
}

func toAvailability(transparency string) calendar.Availability {
	switch transparency {
	case "transparent":
		return calendar.AvailabilityFree
	case "opaque":
		return calendar.AvailabilityBusy
	default:
		return calendar.AvailabilityUnknown
	}
}

func toUpstreamError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &calendar.UpstreamError{
			StatusCode: apiErr.Code,
			Body:       apiErr.Body,
			Err:        err,
		}
	}
	return &calendar.UpstreamError{Err: err}
}
