package registry

import (
	"context"
	"sync"
)

type EntityCreatorStub struct {
	mu      sync.Mutex
	devices []Device
	err     error
}

func NewEntityCreatorStub() *EntityCreatorStub {
	return &EntityCreatorStub{}
}

func (s *EntityCreatorStub) AddCalendar(_ context.Context, device Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = append(s.devices, device)
	return s.err
}

// Helper methods for test setup

func (s *EntityCreatorStub) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *EntityCreatorStub) Devices() []Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]Device, len(s.devices))
	copy(result, s.devices)
	return result
}
