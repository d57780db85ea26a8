package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klokku/outlook-calendar/internal/config"
	"github.com/klokku/outlook-calendar/pkg/oauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAppTest(t *testing.T) *Application {
	t.Setenv("OUTLOOK_CALENDAR_CONFIGDIR", t.TempDir())
	t.Setenv("OUTLOOK_CALENDAR_OUTLOOK_CLIENTID", "client-id")
	t.Setenv("OUTLOOK_CALENDAR_HOST", "https://home.example.com")

	application, err := NewApplication(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	t.Cleanup(application.deps.Close)
	return application
}

func TestApplication_Routes(t *testing.T) {
	t.Run("should return authorization URL for account linking", func(t *testing.T) {
		// given
		application := setupAppTest(t)
		rr := httptest.NewRecorder()

		// when
		application.Router().ServeHTTP(rr, httptest.NewRequest("GET", "/api/setup", nil))

		// then
		require.Equal(t, http.StatusOK, rr.Code)
		var body struct {
			RedirectUrl string `json:"redirectUrl"`
		}
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		u, err := url.Parse(body.RedirectUrl)
		require.NoError(t, err)
		assert.Equal(t, "login.microsoftonline.com", u.Host)
		assert.Equal(t, "https://home.example.com"+oauth.DefaultCallbackPath, u.Query().Get("redirect_uri"))
		assert.Contains(t, u.Query().Get("scope"), "offline_access")
	})

	t.Run("should answer callback without code with message page", func(t *testing.T) {
		// given
		application := setupAppTest(t)
		rr := httptest.NewRecorder()

		// when
		application.Router().ServeHTTP(rr, httptest.NewRequest("GET", oauth.DefaultCallbackPath, nil))

		// then
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "text/html"))
	})

	t.Run("should list no entities before setup", func(t *testing.T) {
		// given
		application := setupAppTest(t)
		rr := httptest.NewRecorder()

		// when
		application.Router().ServeHTTP(rr, httptest.NewRequest("GET", "/api/calendars", nil))

		// then
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, "[]", rr.Body.String())
	})

	t.Run("should expose metrics", func(t *testing.T) {
		// given
		application := setupAppTest(t)
		rr := httptest.NewRecorder()

		// when
		application.Router().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

		// then
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestLoad(t *testing.T) {
	t.Run("should reject configuration without client id", func(t *testing.T) {
		// given
		t.Setenv("OUTLOOK_CALENDAR_CONFIGDIR", t.TempDir())

		// when
		_, _, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))

		// then
		assert.ErrorContains(t, err, "client id")
	})
}

func TestNewScheduler(t *testing.T) {
	t.Run("should reject invalid schedule", func(t *testing.T) {
		// given
		application := setupAppTest(t)

		// when
		_, err := NewScheduler(application.deps, config.Schedule{Update: "every minute", Scan: "@every 1h"})

		// then
		assert.Error(t, err)
	})
}
