package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klokku/outlook-calendar/internal/metrics"
	"github.com/klokku/outlook-calendar/internal/utils"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	OfflineAccessScope = "offline_access"
	// DefaultExpiryMargin is how long before expiry a token is already
	// treated as expired.
	DefaultExpiryMargin = time.Minute
)

type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAwaitingCode    State = "awaiting_code"
	StateAuthenticated   State = "authenticated"
	StateRefreshing      State = "refreshing"
)

type ClientConfig struct {
	ClientId     string
	ClientSecret string
	Endpoint     oauth2.Endpoint
	RedirectURL  string
	Scopes       []string
	// OfflineOptions replace the offline_access scope for providers that ask
	// for a refresh token with URL parameters instead, e.g. Google.
	OfflineOptions []oauth2.AuthCodeOption
}

// Client owns the OAuth token of the single linked account. It performs the
// authorization code exchange and refreshes the access token on demand.
// Refreshes are serialized: concurrent callers share a single request.
type Client struct {
	config       *oauth2.Config
	httpClient   *http.Client
	persister    TokenPersister
	clock        utils.Clock
	expiryMargin time.Duration
	offlineOpts  []oauth2.AuthCodeOption

	mu      sync.Mutex
	token   *Token
	state   State
	refresh singleflight.Group
}

// NewClient creates a client. token is the record loaded at startup, nil when
// the account has not been linked yet.
func NewClient(cfg ClientConfig, persister TokenPersister, token *Token, httpClient *http.Client, clock utils.Clock) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	if clock == nil {
		clock = utils.SystemClock{}
	}
	state := StateUnauthenticated
	if token != nil {
		state = StateAuthenticated
	}
	return &Client{
		config: &oauth2.Config{
			ClientID:     cfg.ClientId,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     cfg.Endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       slices.Clone(cfg.Scopes),
		},
		httpClient:   httpClient,
		persister:    persister,
		clock:        clock,
		expiryMargin: DefaultExpiryMargin,
		offlineOpts:  cfg.OfflineOptions,
		token:        token,
		state:        state,
	}
}

// AuthorizationURL builds the provider's authorization URL and returns it with
// its state. offline_access is added for this request only so the granted
// scopes match what was asked for; the client keeps its base scopes for every
// later call. The config is never modified after NewClient.
func (c *Client) AuthorizationURL() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	authConfig := *c.config
	if len(c.offlineOpts) == 0 {
		authConfig.Scopes = append(slices.Clone(c.config.Scopes), OfflineAccessScope)
	}

	state := uuid.New().String()
	if c.token == nil {
		c.state = StateAwaitingCode
	}
	log.Tracef("Built authorization URL with state: %s", state)
	return authConfig.AuthCodeURL(state, c.offlineOpts...), state
}

// ExchangeCode trades an authorization code for a token. The token is
// persisted and becomes current only when the exchange succeeds.
func (c *Client) ExchangeCode(ctx context.Context, code string) (Token, error) {
	t, err := c.config.Exchange(c.tokenContext(ctx), code)
	if err != nil {
		metrics.TokenExchanges.WithLabelValues(metrics.ResultError).Inc()
		err := &AuthExchangeError{Err: err}
		log.Error(err)
		return Token{}, err
	}

	token := newToken(t, c.clock.Now())
	if err := c.persister.Save(ctx, token); err != nil {
		metrics.TokenExchanges.WithLabelValues(metrics.ResultError).Inc()
		err := fmt.Errorf("unable to persist token: %w", err)
		log.Error(err)
		return Token{}, err
	}

	c.mu.Lock()
	c.token = &token
	c.state = StateAuthenticated
	c.mu.Unlock()

	metrics.TokenExchanges.WithLabelValues(metrics.ResultSuccess).Inc()
	log.Info("Successfully exchanged authorization code for token")
	return token, nil
}

// EnsureFresh returns a valid access token, refreshing it first when it is
// expired or about to expire.
func (c *Client) EnsureFresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.token
	if token == nil {
		c.mu.Unlock()
		return "", ErrUnauthenticated
	}
	if c.isFresh(token) {
		c.mu.Unlock()
		return token.AccessToken, nil
	}
	c.mu.Unlock()

	return c.doRefresh(ctx, false)
}

// ForceRefresh refreshes the access token regardless of its expiry. Used
// when the provider rejected a token that looked valid.
func (c *Client) ForceRefresh(ctx context.Context) (string, error) {
	return c.doRefresh(ctx, true)
}

// doRefresh runs at most one refresh at a time. A caller that arrives while
// a refresh is running shares its result, forced or not.
func (c *Client) doRefresh(ctx context.Context, force bool) (string, error) {
	v, err, _ := c.refresh.Do("refresh", func() (any, error) {
		c.mu.Lock()
		current := c.token
		if current == nil {
			c.mu.Unlock()
			return "", ErrUnauthenticated
		}
		// Another caller may have refreshed while this one waited.
		if !force && c.isFresh(current) {
			c.mu.Unlock()
			return current.AccessToken, nil
		}
		c.state = StateRefreshing
		c.mu.Unlock()

		return c.refreshToken(ctx, *current)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) refreshToken(ctx context.Context, current Token) (string, error) {
	log.Debug("Refreshing OAuth access token")

	expired := current.oauth2Token()
	expired.Expiry = time.Unix(1, 0)
	t, err := c.config.TokenSource(c.tokenContext(ctx), expired).Token()
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues(metrics.ResultError).Inc()
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && isRejection(retrieveErr) {
			c.mu.Lock()
			c.token = nil
			c.state = StateUnauthenticated
			c.mu.Unlock()
			err := &AuthRefreshError{Err: err}
			log.Error(err)
			return "", err
		}
		c.mu.Lock()
		c.state = StateAuthenticated
		c.mu.Unlock()
		err := fmt.Errorf("unable to refresh OAuth token: %w", err)
		log.Error(err)
		return "", err
	}

	token := newToken(t, c.clock.Now())
	if token.RefreshToken == "" {
		token.RefreshToken = current.RefreshToken
	}
	if err := c.persister.Save(ctx, token); err != nil {
		log.Errorf("unable to persist refreshed token: %v", err)
	}

	c.mu.Lock()
	c.token = &token
	c.state = StateAuthenticated
	c.mu.Unlock()

	metrics.TokenRefreshes.WithLabelValues(metrics.ResultSuccess).Inc()
	log.Debug("OAuth access token refreshed")
	return token.AccessToken, nil
}

// isRejection reports whether the token endpoint refused the refresh token.
// Server errors that survived the retries leave the token in place.
func isRejection(err *oauth2.RetrieveError) bool {
	if err.Response == nil {
		return true
	}
	return err.Response.StatusCode < http.StatusInternalServerError
}

func (c *Client) isFresh(token *Token) bool {
	if token.AccessToken == "" {
		return false
	}
	// Without a known expiry the token is only trusted when it cannot be
	// refreshed anyway.
	if token.ExpiresAt.IsZero() {
		return token.RefreshToken == ""
	}
	return c.clock.Now().Add(c.expiryMargin).Before(token.ExpiresAt)
}

// tokenContext routes token endpoint requests through the retrying client.
func (c *Client) tokenContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// HTTPClient returns a client that authorizes every request with a fresh
// access token.
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{
		Timeout:   c.httpClient.Timeout,
		Transport: NewAuthorizedTransport(c, c.httpClient.Transport),
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) HasToken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != nil
}
