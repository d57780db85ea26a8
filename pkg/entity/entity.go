package entity

import (
	"context"
	"time"

	"github.com/klokku/outlook-calendar/internal/utils"
	"github.com/klokku/outlook-calendar/pkg/calendar"
	"github.com/klokku/outlook-calendar/pkg/event_poller"
	"github.com/klokku/outlook-calendar/pkg/offset"
)

type State string

const (
	StateOn  State = "on"
	StateOff State = "off"
)

// Snapshot is the entity as seen at a single point in time.
type Snapshot struct {
	Id            string
	Name          string
	CalId         string
	State         State
	Event         *calendar.Event
	Offset        time.Duration
	OffsetReached bool
	LastFetch     time.Time
}

// Entity exposes the next event of one tracked calendar. The offset is
// evaluated on every read, polling only refreshes the cached event.
type Entity struct {
	id     string
	name   string
	calId  string
	poller *event_poller.Poller
	offset *offset.Calculator
	clock  utils.Clock
}

func NewEntity(id string, name string, calId string, poller *event_poller.Poller, calculator *offset.Calculator, clock utils.Clock) *Entity {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &Entity{
		id:     id,
		name:   name,
		calId:  calId,
		poller: poller,
		offset: calculator,
		clock:  clock,
	}
}

func (e *Entity) Id() string {
	return e.id
}

func (e *Entity) Name() string {
	return e.name
}

// Update polls the calendar. Calls are throttled by the poller and failures
// keep the previous event.
func (e *Entity) Update(ctx context.Context) {
	e.poller.Poll(ctx)
}

func (e *Entity) GetEvents(ctx context.Context, start time.Time, end time.Time) ([]calendar.Event, error) {
	return e.poller.GetEventsInRange(ctx, start, end)
}

func (e *Entity) Event() *calendar.Event {
	return e.Snapshot().Event
}

func (e *Entity) IsOffsetReached() bool {
	return e.Snapshot().OffsetReached
}

func (e *Entity) State() State {
	return e.Snapshot().State
}

func (e *Entity) Snapshot() Snapshot {
	cached := e.poller.State()
	result := e.offset.Evaluate(cached.Event)
	return Snapshot{
		Id:            e.id,
		Name:          e.name,
		CalId:         e.calId,
		State:         stateAt(result.Event, e.clock.Now()),
		Event:         result.Event,
		Offset:        result.Offset,
		OffsetReached: result.Reached,
		LastFetch:     cached.LastFetch,
	}
}

func stateAt(event *calendar.Event, now time.Time) State {
	if event == nil {
		return StateOff
	}
	if !now.Before(event.Start) && now.Before(event.End) {
		return StateOn
	}
	return StateOff
}
