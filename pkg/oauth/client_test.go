package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/klokku/outlook-calendar/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// tokenServer fakes the provider token endpoint.
type tokenServer struct {
	*httptest.Server
	mu        sync.Mutex
	requests  []url.Values
	status    int
	delay     time.Duration
	issued    atomic.Int32
	noRefresh bool
}

func newTokenServer(t *testing.T) *tokenServer {
	ts := &tokenServer{status: http.StatusOK}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		ts.mu.Lock()
		ts.requests = append(ts.requests, r.PostForm)
		status := ts.status
		delay := ts.delay
		noRefresh := ts.noRefresh
		ts.mu.Unlock()

		time.Sleep(delay)
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code already redeemed"}`))
			return
		}
		n := ts.issued.Add(1)
		body := map[string]any{
			"access_token": "access-" + string(rune('0'+n)),
			"token_type":   "Bearer",
			"expires_in":   3600,
			"scope":        "Calendars.Read offline_access",
		}
		if !noRefresh {
			body["refresh_token"] = "refresh-" + string(rune('0'+n))
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) setStatus(status int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.status = status
}

func (ts *tokenServer) Requests() []url.Values {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]url.Values(nil), ts.requests...)
}

func testHTTPClient() *http.Client {
	transport := NewRetryTransport(http.DefaultTransport)
	transport.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return &http.Client{Timeout: 5 * time.Second, Transport: transport}
}

func setupClientTest(t *testing.T, token *Token) (*Client, *tokenServer, *TokenStoreStub, *utils.MockClock) {
	ts := newTokenServer(t)
	store := NewTokenStoreStub()
	clock := utils.NewMockClock(testNow)
	client := NewClient(ClientConfig{
		ClientId:     "client-id",
		ClientSecret: "client-secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:   ts.URL + "/authorize",
			TokenURL:  ts.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: "http://localhost:8181" + DefaultCallbackPath,
		Scopes:      []string{"Calendars.Read"},
	}, store, token, testHTTPClient(), clock)
	return client, ts, store, clock
}

func expiredToken() *Token {
	return &Token{
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		ExpiresIn:    3600,
		TokenType:    "Bearer",
		ExpiresAt:    testNow.Add(-time.Minute),
	}
}

func TestClient_AuthorizationURL(t *testing.T) {
	t.Run("should add offline_access only to the authorization request", func(t *testing.T) {
		// given
		client, _, _, _ := setupClientTest(t, nil)

		// when
		authURL, state := client.AuthorizationURL()

		// then
		u, err := url.Parse(authURL)
		require.NoError(t, err)
		assert.Equal(t, "Calendars.Read offline_access", u.Query().Get("scope"))
		assert.Equal(t, state, u.Query().Get("state"))
		assert.Equal(t, "client-id", u.Query().Get("client_id"))
		assert.Equal(t, []string{"Calendars.Read"}, client.config.Scopes)
		assert.Equal(t, StateAwaitingCode, client.State())
	})

	t.Run("should use the configured redirect URL", func(t *testing.T) {
		// given
		client, _, _, _ := setupClientTest(t, nil)

		// when
		authURL, _ := client.AuthorizationURL()

		// then
		u, err := url.Parse(authURL)
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8181"+DefaultCallbackPath, u.Query().Get("redirect_uri"))
	})

	t.Run("should use offline options instead of offline_access scope", func(t *testing.T) {
		// given
		client := NewClient(ClientConfig{
			ClientId:       "client-id",
			Endpoint:       oauth2.Endpoint{AuthURL: "https://accounts.example.com/auth", TokenURL: "https://accounts.example.com/token"},
			Scopes:         []string{"calendar.readonly"},
			OfflineOptions: []oauth2.AuthCodeOption{oauth2.AccessTypeOffline},
		}, NewTokenStoreStub(), nil, nil, nil)

		// when
		authURL, _ := client.AuthorizationURL()

		// then
		u, err := url.Parse(authURL)
		require.NoError(t, err)
		assert.Equal(t, "calendar.readonly", u.Query().Get("scope"))
		assert.Equal(t, "offline", u.Query().Get("access_type"))
	})

	t.Run("should generate a new state every time", func(t *testing.T) {
		// given
		client, _, _, _ := setupClientTest(t, nil)

		// when
		_, first := client.AuthorizationURL()
		_, second := client.AuthorizationURL()

		// then
		assert.NotEqual(t, first, second)
	})
}

func TestClient_ExchangeCode(t *testing.T) {
	t.Run("should exchange code and persist token", func(t *testing.T) {
		// given
		client, ts, store, _ := setupClientTest(t, nil)

		// when
		token, err := client.ExchangeCode(context.Background(), "auth-code")

		// then
		require.NoError(t, err)
		assert.Equal(t, "access-1", token.AccessToken)
		assert.Equal(t, "refresh-1", token.RefreshToken)
		assert.Equal(t, int64(3600), token.ExpiresIn)
		assert.Equal(t, "Calendars.Read offline_access", token.Scope)
		assert.Equal(t, testNow.Add(time.Hour), token.ExpiresAt)
		require.Len(t, store.Saves(), 1)
		assert.Equal(t, token, store.Saves()[0])
		assert.Equal(t, StateAuthenticated, client.State())

		requests := ts.Requests()
		require.Len(t, requests, 1)
		assert.Equal(t, "authorization_code", requests[0].Get("grant_type"))
		assert.Equal(t, "auth-code", requests[0].Get("code"))
	})

	t.Run("should fail without touching stored token when code is rejected", func(t *testing.T) {
		// given
		client, ts, store, _ := setupClientTest(t, nil)
		_, err := client.ExchangeCode(context.Background(), "auth-code")
		require.NoError(t, err)
		ts.setStatus(http.StatusBadRequest)

		// when
		_, err = client.ExchangeCode(context.Background(), "auth-code")

		// then
		var exchangeErr *AuthExchangeError
		require.ErrorAs(t, err, &exchangeErr)
		require.Len(t, store.Saves(), 1)
		stored, err := store.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "access-1", stored.AccessToken)
		assert.Equal(t, StateAuthenticated, client.State())
		assert.Len(t, ts.Requests(), 2)
	})

	t.Run("should not keep token when it cannot be persisted", func(t *testing.T) {
		// given
		client, _, store, _ := setupClientTest(t, nil)
		store.SetSaveError(ErrStoreTestError)

		// when
		_, err := client.ExchangeCode(context.Background(), "auth-code")

		// then
		require.ErrorIs(t, err, ErrStoreTestError)
		assert.False(t, client.HasToken())
	})
}

func TestClient_EnsureFresh(t *testing.T) {
	t.Run("should return cached token when not expired", func(t *testing.T) {
		// given
		token := expiredToken()
		token.ExpiresAt = testNow.Add(30 * time.Minute)
		client, ts, store, _ := setupClientTest(t, token)

		// when
		accessToken, err := client.EnsureFresh(context.Background())

		// then
		require.NoError(t, err)
		assert.Equal(t, "old-access", accessToken)
		assert.Empty(t, ts.Requests())
		assert.Empty(t, store.Saves())
	})

	t.Run("should refresh token within the expiry margin", func(t *testing.T) {
		// given
		token := expiredToken()
		token.ExpiresAt = testNow.Add(30 * time.Second)
		client, ts, store, _ := setupClientTest(t, token)

		// when
		accessToken, err := client.EnsureFresh(context.Background())

		// then
		require.NoError(t, err)
		assert.Equal(t, "access-1", accessToken)
		require.Len(t, ts.Requests(), 1)
		assert.Equal(t, "refresh_token", ts.Requests()[0].Get("grant_type"))
		assert.Equal(t, "old-refresh", ts.Requests()[0].Get("refresh_token"))
		require.Len(t, store.Saves(), 1)
		assert.Equal(t, "access-1", store.Saves()[0].AccessToken)
	})

	t.Run("should refresh after clock passes expiry", func(t *testing.T) {
		// given
		token := expiredToken()
		token.ExpiresAt = testNow.Add(10 * time.Minute)
		client, ts, _, clock := setupClientTest(t, token)
		_, err := client.EnsureFresh(context.Background())
		require.NoError(t, err)
		require.Empty(t, ts.Requests())

		// when
		clock.Advance(10 * time.Minute)
		accessToken, err := client.EnsureFresh(context.Background())

		// then
		require.NoError(t, err)
		assert.Equal(t, "access-1", accessToken)
		assert.Len(t, ts.Requests(), 1)
	})

	t.Run("should keep previous refresh token when provider omits it", func(t *testing.T) {
		// given
		client, ts, store, _ := setupClientTest(t, expiredToken())
		ts.mu.Lock()
		ts.noRefresh = true
		ts.mu.Unlock()

		// when
		_, err := client.EnsureFresh(context.Background())

		// then
		require.NoError(t, err)
		require.Len(t, store.Saves(), 1)
		assert.Equal(t, "old-refresh", store.Saves()[0].RefreshToken)
	})

	t.Run("should refresh only once for concurrent callers", func(t *testing.T) {
		// given
		client, ts, store, _ := setupClientTest(t, expiredToken())
		ts.mu.Lock()
		ts.delay = 100 * time.Millisecond
		ts.mu.Unlock()

		// when
		var wg sync.WaitGroup
		results := make([]string, 5)
		errs := make([]error, 5)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = client.EnsureFresh(context.Background())
			}(i)
		}
		wg.Wait()

		// then
		for i := range results {
			require.NoError(t, errs[i])
			assert.Equal(t, "access-1", results[i])
		}
		assert.Len(t, ts.Requests(), 1)
		assert.Len(t, store.Saves(), 1)
	})

	t.Run("should fail with refresh error when refresh token is rejected", func(t *testing.T) {
		// given
		client, ts, store, _ := setupClientTest(t, expiredToken())
		ts.setStatus(http.StatusBadRequest)

		// when
		_, err := client.EnsureFresh(context.Background())

		// then
		var refreshErr *AuthRefreshError
		require.ErrorAs(t, err, &refreshErr)
		assert.Empty(t, store.Saves())
		assert.Equal(t, StateUnauthenticated, client.State())
		assert.False(t, client.HasToken())

		_, err = client.EnsureFresh(context.Background())
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("should keep token when token endpoint keeps failing", func(t *testing.T) {
		// given
		client, ts, _, _ := setupClientTest(t, expiredToken())
		ts.setStatus(http.StatusServiceUnavailable)

		// when
		_, err := client.EnsureFresh(context.Background())

		// then
		require.Error(t, err)
		var refreshErr *AuthRefreshError
		assert.False(t, errors.As(err, &refreshErr))
		assert.True(t, client.HasToken())
		assert.Equal(t, StateAuthenticated, client.State())
		assert.Len(t, ts.Requests(), DefaultMaxAttempts)
	})

	t.Run("should return token even when refreshed token cannot be persisted", func(t *testing.T) {
		// given
		client, _, store, _ := setupClientTest(t, expiredToken())
		store.SetSaveError(ErrStoreTestError)

		// when
		accessToken, err := client.EnsureFresh(context.Background())

		// then
		require.NoError(t, err)
		assert.Equal(t, "access-1", accessToken)
	})

	t.Run("should fail when no token is available", func(t *testing.T) {
		// given
		client, ts, _, _ := setupClientTest(t, nil)

		// when
		_, err := client.EnsureFresh(context.Background())

		// then
		assert.ErrorIs(t, err, ErrUnauthenticated)
		assert.Empty(t, ts.Requests())
	})
}

func TestClient_ForceRefresh(t *testing.T) {
	t.Run("should share a refresh already in flight", func(t *testing.T) {
		// given
		client, ts, store, _ := setupClientTest(t, expiredToken())
		ts.mu.Lock()
		ts.delay = 200 * time.Millisecond
		ts.mu.Unlock()
		ensured := make(chan string, 1)
		go func() {
			access, _ := client.EnsureFresh(context.Background())
			ensured <- access
		}()
		require.Eventually(t, func() bool { return len(ts.Requests()) == 1 }, time.Second, 5*time.Millisecond)

		// when
		forced, err := client.ForceRefresh(context.Background())

		// then
		require.NoError(t, err)
		assert.Equal(t, "access-1", forced)
		assert.Equal(t, "access-1", <-ensured)
		assert.Len(t, ts.Requests(), 1)
		assert.Len(t, store.Saves(), 1)
	})

	t.Run("should refresh a token that is not expired", func(t *testing.T) {
		// given
		token := expiredToken()
		token.ExpiresAt = testNow.Add(time.Hour)
		client, ts, store, _ := setupClientTest(t, token)

		// when
		accessToken, err := client.ForceRefresh(context.Background())

		// then
		require.NoError(t, err)
		assert.Equal(t, "access-1", accessToken)
		assert.Len(t, ts.Requests(), 1)
		assert.Len(t, store.Saves(), 1)
	})
}

func TestClient_HTTPClient(t *testing.T) {
	t.Run("should send bearer token", func(t *testing.T) {
		// given
		token := expiredToken()
		token.ExpiresAt = testNow.Add(time.Hour)
		client, _, _, _ := setupClientTest(t, token)
		var authorization string
		api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization = r.Header.Get("Authorization")
			_, _ = w.Write([]byte("{}"))
		}))
		defer api.Close()

		// when
		resp, err := client.HTTPClient().Get(api.URL)

		// then
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, strings.HasPrefix(authorization, "Bearer "))
		assert.Equal(t, "Bearer old-access", authorization)
	})
}
