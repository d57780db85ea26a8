package event_poller

import (
	"context"
	"time"

	"github.com/klokku/outlook-calendar/internal/metrics"
	"github.com/klokku/outlook-calendar/internal/utils"
	"github.com/klokku/outlook-calendar/pkg/calendar"
	log "github.com/sirupsen/logrus"
)

const (
	MinTimeBetweenUpdates = 15 * time.Minute
	DefaultMaxResults     = 5
)

type Options struct {
	CalendarId         string
	Filter             string
	IgnoreAvailability bool
	MaxResults         int
}

// State is the cached next event of one calendar. Event is nil when no
// qualifying event was found in the last fetched window.
type State struct {
	Event     *calendar.Event
	LastFetch time.Time
}

// Poller finds the next relevant event of a single calendar and caches it.
type Poller struct {
	client   calendar.Client
	opts     Options
	clock    utils.Clock
	throttle *Throttle[*calendar.Event]
}

func NewPoller(client calendar.Client, opts Options, clock utils.Clock) *Poller {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &Poller{
		client:   client,
		opts:     opts,
		clock:    clock,
		throttle: NewThrottle[*calendar.Event](MinTimeBetweenUpdates, clock),
	}
}

// Poll refreshes the cached next event, at most once per
// MinTimeBetweenUpdates. Fetch failures are logged and leave the cached
// state as it was.
func (p *Poller) Poll(ctx context.Context) State {
	_, fetched, err := p.throttle.Do(func() (*calendar.Event, error) {
		return p.fetchNext(ctx)
	})
	switch {
	case err != nil:
		metrics.Polls.WithLabelValues(p.opts.CalendarId, metrics.ResultError).Inc()
		log.Errorf("unable to poll calendar %s, keeping previous state: %v", p.opts.CalendarId, err)
	case fetched:
		metrics.Polls.WithLabelValues(p.opts.CalendarId, metrics.ResultSuccess).Inc()
	default:
		metrics.Polls.WithLabelValues(p.opts.CalendarId, metrics.ResultCached).Inc()
	}
	return p.State()
}

func (p *Poller) State() State {
	event, lastFetch := p.throttle.Last()
	if event != nil {
		copied := *event
		event = &copied
	}
	return State{Event: event, LastFetch: lastFetch}
}

func (p *Poller) fetchNext(ctx context.Context) (*calendar.Event, error) {
	now := p.clock.Now()
	events, err := p.client.ListEvents(ctx, p.opts.CalendarId, now, now.AddDate(1, 0, 0), p.opts.MaxResults, p.opts.Filter)
	if err != nil {
		return nil, err
	}

	for _, e := range events {
		if IsAvailable(e, p.opts.IgnoreAvailability) {
			log.Debugf("Next event of calendar %s: %s at %s", p.opts.CalendarId, e.Description, e.Start.Format(time.RFC3339))
			return &e, nil
		}
	}
	log.Debugf("No upcoming event in calendar %s", p.opts.CalendarId)
	return nil, nil
}

// GetEventsInRange queries the provider directly, without the cache, and
// returns every event in [start, end) that passes the availability filter.
func (p *Poller) GetEventsInRange(ctx context.Context, start time.Time, end time.Time) ([]calendar.Event, error) {
	events, err := p.client.ListEvents(ctx, p.opts.CalendarId, start, end, p.opts.MaxResults, p.opts.Filter)
	if err != nil {
		log.Errorf("unable to get events of calendar %s: %v", p.opts.CalendarId, err)
		return nil, err
	}
	return FilterAvailable(events, p.opts.IgnoreAvailability), nil
}

func (p *Poller) Options() Options {
	return p.opts
}
