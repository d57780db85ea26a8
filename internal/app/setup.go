package app

import (
	"context"
	"sync/atomic"

	"github.com/klokku/outlook-calendar/pkg/entity"
	"github.com/klokku/outlook-calendar/pkg/registry"
	log "github.com/sirupsen/logrus"
)

// Setup loads the known calendars and their entities once an account is
// linked. Scheduled jobs do nothing until it has completed.
type Setup struct {
	syncer  *registry.Syncer
	manager *entity.Manager
	done    atomic.Bool
}

func NewSetup(syncer *registry.Syncer, manager *entity.Manager) *Setup {
	return &Setup{syncer: syncer, manager: manager}
}

func (s *Setup) Continue(ctx context.Context) error {
	if err := s.syncer.Setup(ctx); err != nil {
		log.Errorf("calendar setup failed: %v", err)
		return err
	}
	s.done.Store(true)
	log.Info("Calendar setup completed")
	return s.manager.UpdateAll(ctx)
}

func (s *Setup) Done() bool {
	return s.done.Load()
}
