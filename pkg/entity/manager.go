package entity

import (
	"context"
	"fmt"
	"sync"

	"github.com/klokku/outlook-calendar/internal/utils"
	"github.com/klokku/outlook-calendar/pkg/calendar"
	"github.com/klokku/outlook-calendar/pkg/event_poller"
	"github.com/klokku/outlook-calendar/pkg/offset"
	"github.com/klokku/outlook-calendar/pkg/registry"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	IdFormat       = "calendar.%s"
	DefaultWorkers = 4
)

// Manager owns the entities of all tracked calendars and updates them on a
// bounded pool of workers.
type Manager struct {
	client  calendar.Client
	clock   utils.Clock
	workers int

	mu       sync.RWMutex
	entities map[string]*Entity
	order    []string
}

func NewManager(client calendar.Client, clock utils.Clock, workers int) *Manager {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &Manager{
		client:   client,
		clock:    clock,
		workers:  workers,
		entities: make(map[string]*Entity),
	}
}

// AddCalendar creates an entity for every tracked entry of the device.
// Entities that already exist are left alone.
func (m *Manager) AddCalendar(_ context.Context, device registry.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, cfg := range device.TrackedEntities() {
		id := fmt.Sprintf(IdFormat, cfg.DeviceId)
		if _, ok := m.entities[id]; ok {
			log.Debugf("Entity %s already exists", id)
			continue
		}

		poller := event_poller.NewPoller(m.client, event_poller.Options{
			CalendarId:         device.CalId,
			Filter:             cfg.Filter,
			IgnoreAvailability: cfg.IgnoresAvailability(),
			MaxResults:         cfg.MaxResults,
		}, m.clock)
		calculator := offset.NewCalculator(cfg.Offset, m.clock)

		m.entities[id] = NewEntity(id, cfg.Name, device.CalId, poller, calculator, m.clock)
		m.order = append(m.order, id)
		log.Infof("Added calendar entity %s (%s)", id, cfg.Name)
	}
	return nil
}

// UpdateAll polls every entity. Entities are independent, so they are
// updated concurrently.
func (m *Manager) UpdateAll(ctx context.Context) error {
	entities := m.List()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for _, e := range entities {
		g.Go(func() error {
			e.Update(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (m *Manager) Get(id string) (*Entity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[id]
	return e, ok
}

func (m *Manager) List() []*Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entities := make([]*Entity, 0, len(m.order))
	for _, id := range m.order {
		entities = append(entities, m.entities[id])
	}
	return entities
}
