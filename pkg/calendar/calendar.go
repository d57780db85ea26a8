package calendar

import (
	"context"
	"time"
)

// Availability is the provider's busy/free marker for an event.
type Availability string

const (
	AvailabilityUnknown          Availability = ""
	AvailabilityFree             Availability = "free"
	AvailabilityBusy             Availability = "busy"
	AvailabilityTentative        Availability = "tentative"
	AvailabilityOof              Availability = "oof"
	AvailabilityWorkingElsewhere Availability = "workingElsewhere"
)

// Descriptor identifies a remote calendar. Id is the stable join key between
// the provider and the locally tracked configuration.
type Descriptor struct {
	Id    string
	Name  string
	Track bool
}

// Event is the provider-independent shape of a calendar event.
type Event struct {
	Description  string       `json:"description"`
	Start        time.Time    `json:"start"`
	End          time.Time    `json:"end"`
	Location     string       `json:"location"`
	AllDay       bool         `json:"all_day"`
	Availability Availability `json:"-"`
}

// Client is implemented by every calendar provider.
type Client interface {
	ListCalendars(ctx context.Context) ([]Descriptor, error)
	// ListEvents returns events in [start, end) ordered by end time ascending,
	// capped at maxResults. filter is passed to the provider verbatim when set.
	ListEvents(ctx context.Context, calendarId string, start time.Time, end time.Time, maxResults int, filter string) ([]Event, error)
}
