package calendar

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

type ClientStub struct {
	mu               sync.RWMutex
	calendars        []Descriptor
	events           map[string][]Event // calendarId -> events
	listCalendarsErr error
	listEventsErr    error
	listCalendarsN   int
	listEventsN      int
}

func NewClientStub() *ClientStub {
	return &ClientStub{
		events: make(map[string][]Event),
	}
}

func (c *ClientStub) ListCalendars(ctx context.Context) ([]Descriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listCalendarsN++

	if c.listCalendarsErr != nil {
		return nil, c.listCalendarsErr
	}

	result := make([]Descriptor, len(c.calendars))
	copy(result, c.calendars)
	return result, nil
}

func (c *ClientStub) ListEvents(ctx context.Context, calendarId string, start time.Time, end time.Time, maxResults int, filter string) ([]Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listEventsN++

	if c.listEventsErr != nil {
		return nil, c.listEventsErr
	}

	var result []Event
	for _, e := range c.events[calendarId] {
		if e.End.After(start) && e.Start.Before(end) {
			result = append(result, e)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].End.Before(result[j].End)
	})
	if maxResults > 0 && len(result) > maxResults {
		result = result[:maxResults]
	}
	return result, nil
}

// Helper methods for test setup

func (c *ClientStub) SetCalendars(calendars []Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calendars = make([]Descriptor, len(calendars))
	copy(c.calendars, calendars)
}

func (c *ClientStub) SetEvents(calendarId string, events []Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[calendarId] = make([]Event, len(events))
	copy(c.events[calendarId], events)
}

func (c *ClientStub) SetListCalendarsError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listCalendarsErr = err
}

func (c *ClientStub) SetListEventsError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listEventsErr = err
}

func (c *ClientStub) ListCalendarsCalls() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.listCalendarsN
}

func (c *ClientStub) ListEventsCalls() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.listEventsN
}

// Reset clears all data
func (c *ClientStub) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calendars = nil
	c.events = make(map[string][]Event)
	c.listCalendarsErr = nil
	c.listEventsErr = nil
	c.listCalendarsN = 0
	c.listEventsN = 0
}

var ErrClientTestError = &UpstreamError{StatusCode: 503, Body: "service unavailable", Err: errors.New("client test error")}
