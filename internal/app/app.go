package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/klokku/outlook-calendar/internal/config"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultConfigPath = "./config/application.yaml"
	shutdownTimeout   = 15 * time.Second
)

// Application wires configuration, dependencies, router, scheduler, and server lifecycle.
type Application struct {
	cfg       config.Application
	deps      *Dependencies
	router    *mux.Router
	srv       *http.Server
	scheduler *Scheduler
}

// Load reads the configuration and builds the dependencies without starting
// anything.
func Load(ctx context.Context, configPath string) (config.Application, *Dependencies, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Application{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		log.Errorf("invalid configuration: %v", err)
		return config.Application{}, nil, err
	}

	deps, err := BuildDependencies(ctx, cfg)
	if err != nil {
		return config.Application{}, nil, err
	}
	return cfg, deps, nil
}

// NewApplication constructs the full HTTP application, ready to Run().
func NewApplication(ctx context.Context, configPath string) (*Application, error) {
	cfg, deps, err := Load(ctx, configPath)
	if err != nil {
		return nil, err
	}

	r := mux.NewRouter()

	// Middleware chain
	SetupMiddleware(r, deps, cfg)

	// Routes
	RegisterRoutes(r, deps, cfg)

	scheduler, err := NewScheduler(deps, cfg.Schedule)
	if err != nil {
		deps.Close()
		return nil, err
	}

	srv := &http.Server{
		Handler:      r,
		Addr:         cfg.Listen,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Application{cfg: cfg, deps: deps, router: r, srv: srv, scheduler: scheduler}, nil
}

// Run starts the HTTP server and the scheduler and blocks until ctx is done
// or the server fails.
func (a *Application) Run(ctx context.Context) error {
	defer a.deps.Close()

	if a.deps.OAuthClient.HasToken() {
		go func() {
			_ = a.deps.Setup.Continue(ctx)
		}()
	} else if _, err := a.deps.SetupFlow.Start(); err != nil {
		log.Errorf("unable to start account linking: %v", err)
	}

	a.scheduler.Start()

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s", a.srv.Addr)
		serverErr <- a.srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		a.stopScheduler()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.scheduler.Stop(shutdownCtx)
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("server shutdown failed: %v", err)
		return err
	}
	return nil
}

func (a *Application) stopScheduler() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.scheduler.Stop(ctx)
}

func (a *Application) Router() *mux.Router {
	return a.router
}
