package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/klokku/outlook-calendar/internal/metrics"
	"github.com/klokku/outlook-calendar/pkg/calendar"
	log "github.com/sirupsen/logrus"
)

// EntityCreator receives every known device, at load time and when a new
// calendar is discovered. It must tolerate the same device twice.
type EntityCreator interface {
	AddCalendar(ctx context.Context, device Device) error
}

// Syncer keeps the devices file in line with the calendars of the linked
// account. Known devices are never modified, new ones are appended.
type Syncer struct {
	client   calendar.Client
	store    *DeviceStore
	creator  EntityCreator
	trackNew bool

	mu      sync.Mutex
	devices map[string]Device
	order   []string
}

func NewSyncer(client calendar.Client, store *DeviceStore, creator EntityCreator, trackNew bool) *Syncer {
	return &Syncer{
		client:   client,
		store:    store,
		creator:  creator,
		trackNew: trackNew,
		devices:  make(map[string]Device),
	}
}

// Setup loads the devices file, creates the entities of every known device
// and looks for new calendars.
func (s *Syncer) Setup(ctx context.Context) error {
	if err := s.Load(ctx); err != nil {
		return err
	}
	_, err := s.Scan(ctx)
	return err
}

func (s *Syncer) Load(ctx context.Context) error {
	devices, err := s.store.Load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	for _, d := range devices {
		s.remember(d)
	}
	s.mu.Unlock()

	for _, d := range devices {
		if err := s.creator.AddCalendar(ctx, d); err != nil {
			log.Errorf("unable to create entities for calendar %s: %v", d.CalId, err)
		}
	}
	log.Infof("Loaded %d calendars from %s", len(devices), s.store.Path())
	return nil
}

// Scan lists the remote calendars and registers those not known yet. Running
// it again without new remote calendars changes nothing.
func (s *Syncer) Scan(ctx context.Context) ([]calendar.Descriptor, error) {
	log.Info("Scanning for calendars")
	calendars, err := s.client.ListCalendars(ctx)
	if err != nil {
		err := fmt.Errorf("unable to scan for calendars: %w", err)
		log.Error(err)
		return nil, err
	}

	for i := range calendars {
		calendars[i].Track = s.trackNew
		if _, err := s.found(ctx, calendars[i]); err != nil {
			return calendars, err
		}
	}
	return calendars, nil
}

func (s *Syncer) found(ctx context.Context, descriptor calendar.Descriptor) (bool, error) {
	s.mu.Lock()
	if _, ok := s.devices[descriptor.Id]; ok {
		s.mu.Unlock()
		return false, nil
	}

	device := Device{
		CalId: descriptor.Id,
		Entities: []EntityConfig{{
			Name:     descriptor.Name,
			DeviceId: GenerateDeviceId(descriptor.Name, s.deviceIdTaken),
			Track:    descriptor.Track,
		}},
	}
	if err := s.store.Append(device); err != nil {
		s.mu.Unlock()
		err := fmt.Errorf("unable to persist calendar %s: %w", descriptor.Id, err)
		log.Error(err)
		return false, err
	}
	s.remember(device)
	s.mu.Unlock()

	metrics.CalendarsDiscovered.Inc()
	log.Infof("Found new calendar %q (%s)", descriptor.Name, device.Entities[0].DeviceId)
	if err := s.creator.AddCalendar(ctx, device); err != nil {
		log.Errorf("unable to create entities for calendar %s: %v", device.CalId, err)
	}
	return true, nil
}

func (s *Syncer) remember(device Device) {
	if _, ok := s.devices[device.CalId]; !ok {
		s.order = append(s.order, device.CalId)
	}
	s.devices[device.CalId] = device
}

// deviceIdTaken must be called with s.mu held.
func (s *Syncer) deviceIdTaken(id string) bool {
	for _, d := range s.devices {
		for _, e := range d.Entities {
			if e.DeviceId == id {
				return true
			}
		}
	}
	return false
}

func (s *Syncer) Devices() []Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	devices := make([]Device, 0, len(s.order))
	for _, id := range s.order {
		devices = append(devices, s.devices[id])
	}
	return devices
}
