package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

const (
	ProviderOutlook = "outlook"
	ProviderGoogle  = "google"

	TokenStoreFile     = "file"
	TokenStorePostgres = "postgres"

	envPrefix = "OUTLOOK_CALENDAR_"
)

type Application struct {
	Host      string   `koanf:"host"`
	Listen    string   `koanf:"listen"`
	ConfigDir string   `koanf:"configdir"`
	Provider  string   `koanf:"provider"`
	Outlook   Outlook  `koanf:"outlook"`
	Google    Google   `koanf:"google"`
	Token     Token    `koanf:"token"`
	Database  Database `koanf:"db"`
	Schedule  Schedule `koanf:"schedule"`
	Workers   int      `koanf:"workers"`
	Metrics   Metrics  `koanf:"metrics"`
}

type Outlook struct {
	ClientId     string `koanf:"clientid"`
	ClientSecret string `koanf:"clientsecret"`
	TrackNew     bool   `koanf:"tracknew"`
}

type Google struct {
	ClientId     string `koanf:"clientid"`
	ClientSecret string `koanf:"clientsecret"`
}

type Token struct {
	Store string `koanf:"store"`
}

type Database struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	User   string `koanf:"user"`
	Pass   string `koanf:"pass"`
	Name   string `koanf:"name"`
	Schema string `koanf:"schema"`
}

type Schedule struct {
	Update string `koanf:"update"`
	Scan   string `koanf:"scan"`
}

type Metrics struct {
	Enabled bool `koanf:"enabled"`
}

// ClientCredentials returns the OAuth application credentials of the
// selected provider.
func (a Application) ClientCredentials() (string, string) {
	if a.Provider == ProviderGoogle {
		return a.Google.ClientId, a.Google.ClientSecret
	}
	return a.Outlook.ClientId, a.Outlook.ClientSecret
}

func (a Application) ConfigPath(name string) string {
	return filepath.Join(a.ConfigDir, name)
}

func (a Application) Validate() error {
	switch a.Provider {
	case ProviderOutlook, ProviderGoogle:
	default:
		return fmt.Errorf("unknown provider %q", a.Provider)
	}
	switch a.Token.Store {
	case TokenStoreFile, TokenStorePostgres:
	default:
		return fmt.Errorf("unknown token store %q", a.Token.Store)
	}
	if id, _ := a.ClientCredentials(); id == "" {
		return fmt.Errorf("client id of provider %s is not configured", a.Provider)
	}
	return nil
}

func defaults() Application {
	return Application{
		Host:      "http://localhost:8181",
		Listen:    ":8181",
		ConfigDir: ".",
		Provider:  ProviderOutlook,
		Outlook: Outlook{
			TrackNew: true,
		},
		Token: Token{
			Store: TokenStoreFile,
		},
		Database: Database{
			Host:   "localhost",
			Port:   5432,
			User:   "outlook_calendar",
			Pass:   "",
			Name:   "outlook_calendar",
			Schema: "public",
		},
		Schedule: Schedule{
			Update: "@every 1m",
			Scan:   "@every 1h",
		},
		Workers: 4,
		Metrics: Metrics{
			Enabled: true,
		},
	}
}

func Load(path string) (Application, error) {
	var k = koanf.New(".")

	err := k.Load(structs.Provider(defaults(), "koanf"), nil)
	if err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Config file not found at %s, using defaults and environment variables", path)
		} else {
			log.Errorf("error loading config from YAML: %v", err)
			return Application{}, err
		}
	} else {
		log.Infof("Loaded configuration from file: %s", path)
	}

	err = k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, envPrefix)), "_", ".")
			return k, v
		},
	}), nil)
	if err != nil {
		log.Errorf("error loading config from envs: %v", err)
		return Application{}, err
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, err
	}
	app.Host = strings.TrimSuffix(app.Host, "/")

	return app, nil
}
