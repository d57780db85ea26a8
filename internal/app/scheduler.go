package app

import (
	"context"
	"time"

	"github.com/klokku/outlook-calendar/internal/config"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

const jobTimeout = 5 * time.Minute

type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler registers the entity update and calendar scan jobs. Both are
// skipped while the account is not linked. The update job retries a setup
// that failed earlier.
func NewScheduler(deps *Dependencies, cfg config.Schedule) (*Scheduler, error) {
	logger := cron.PrintfLogger(log.StandardLogger())
	c := cron.New(cron.WithLogger(logger), cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	))

	ready := func() bool {
		return deps.OAuthClient.HasToken() && deps.Setup.Done()
	}

	if _, err := c.AddFunc(cfg.Update, func() {
		if !deps.OAuthClient.HasToken() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if !deps.Setup.Done() {
			log.Info("Retrying calendar setup")
			_ = deps.Setup.Continue(ctx)
			return
		}
		if err := deps.EntityManager.UpdateAll(ctx); err != nil {
			log.Errorf("entity update failed: %v", err)
		}
	}); err != nil {
		log.Errorf("invalid update schedule %q: %v", cfg.Update, err)
		return nil, err
	}

	if _, err := c.AddFunc(cfg.Scan, func() {
		if !ready() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if _, err := deps.Syncer.Scan(ctx); err != nil {
			log.Errorf("calendar scan failed: %v", err)
		}
	}); err != nil {
		log.Errorf("invalid scan schedule %q: %v", cfg.Scan, err)
		return nil, err
	}

	return &Scheduler{cron: c}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
