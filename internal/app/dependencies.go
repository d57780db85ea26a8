package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/outlook-calendar/internal/config"
	"github.com/klokku/outlook-calendar/internal/database"
	"github.com/klokku/outlook-calendar/internal/utils"
	"github.com/klokku/outlook-calendar/pkg/calendar"
	"github.com/klokku/outlook-calendar/pkg/entity"
	"github.com/klokku/outlook-calendar/pkg/google"
	"github.com/klokku/outlook-calendar/pkg/oauth"
	"github.com/klokku/outlook-calendar/pkg/outlook"
	"github.com/klokku/outlook-calendar/pkg/registry"
	log "github.com/sirupsen/logrus"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	DB *pgxpool.Pool

	TokenStore   oauth.TokenStore
	OAuthClient  *oauth.Client
	SetupFlow    *oauth.SetupFlow
	OAuthHandler *oauth.Handler

	CalendarClient calendar.Client

	DeviceStore   *registry.DeviceStore
	EntityManager *entity.Manager
	Syncer        *registry.Syncer
	EntityHandler *entity.Handler

	Setup *Setup

	Clock utils.Clock
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(ctx context.Context, cfg config.Application) (*Dependencies, error) {
	deps := &Dependencies{}
	deps.Clock = utils.SystemClock{}

	store, err := buildTokenStore(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}
	deps.TokenStore = store

	token, err := deps.TokenStore.Load(ctx)
	if err != nil {
		log.Errorf("unable to load token: %v", err)
		return nil, err
	}

	redirectURL := cfg.Host + oauth.DefaultCallbackPath
	clientId, clientSecret := cfg.ClientCredentials()
	oauthConfig := oauth.ClientConfig{
		ClientId:     clientId,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
	}
	switch cfg.Provider {
	case config.ProviderGoogle:
		oauthConfig.Endpoint = google.Endpoint
		oauthConfig.Scopes = google.Scopes
		oauthConfig.OfflineOptions = google.OfflineOptions
	default:
		oauthConfig.Endpoint = outlook.Endpoint
		oauthConfig.Scopes = outlook.Scopes
	}
	deps.OAuthClient = oauth.NewClient(oauthConfig, deps.TokenStore, token, oauth.NewHTTPClient(), deps.Clock)
	deps.SetupFlow = oauth.NewSetupFlow(deps.OAuthClient)

	switch cfg.Provider {
	case config.ProviderGoogle:
		client, err := google.NewClient(ctx, deps.OAuthClient.HTTPClient())
		if err != nil {
			return nil, err
		}
		deps.CalendarClient = client
	default:
		deps.CalendarClient = outlook.NewClient(deps.OAuthClient.HTTPClient(), outlook.DefaultBaseURL)
	}

	deps.DeviceStore = registry.NewDeviceStore(cfg.ConfigPath(registry.DevicesFile))
	deps.EntityManager = entity.NewManager(deps.CalendarClient, deps.Clock, cfg.Workers)
	deps.Syncer = registry.NewSyncer(deps.CalendarClient, deps.DeviceStore, deps.EntityManager, cfg.Outlook.TrackNew)
	deps.EntityHandler = entity.NewHandler(deps.EntityManager, deps.Syncer)

	deps.Setup = NewSetup(deps.Syncer, deps.EntityManager)
	deps.OAuthHandler = oauth.NewHandler(deps.SetupFlow, deps.Setup)

	return deps, nil
}

func buildTokenStore(ctx context.Context, cfg config.Application, deps *Dependencies) (oauth.TokenStore, error) {
	switch cfg.Token.Store {
	case config.TokenStorePostgres:
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(cfg.Database); err != nil {
			db.Close()
			return nil, err
		}
		deps.DB = db
		return oauth.NewPostgresTokenStore(db), nil
	case config.TokenStoreFile:
		return oauth.NewFileTokenStore(cfg.ConfigPath(oauth.TokenFile)), nil
	default:
		return nil, fmt.Errorf("unknown token store %q", cfg.Token.Store)
	}
}

func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
