package oauth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRetryTransport() *RetryTransport {
	transport := NewRetryTransport(http.DefaultTransport)
	transport.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return transport
}

func statusSequenceServer(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))
		status := statuses[len(statuses)-1]
		if n <= len(statuses) {
			status = statuses[n-1]
		}
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestRetryTransport_RoundTrip(t *testing.T) {
	tests := []struct {
		name           string
		statuses       []int
		expectedStatus int
		expectedCalls  int32
	}{
		{"should not retry success", []int{200}, 200, 1},
		{"should retry 503 then succeed", []int{503, 200}, 200, 2},
		{"should retry 500 and 502", []int{500, 502, 200}, 200, 3},
		{"should return last response after three 504", []int{504}, 504, 3},
		{"should not retry 400", []int{400, 200}, 400, 1},
		{"should not retry 401", []int{401, 200}, 401, 1},
		{"should not retry 404", []int{404, 200}, 404, 1},
		{"should not retry 501", []int{501, 200}, 501, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// given
			server, calls := statusSequenceServer(t, tt.statuses...)
			client := &http.Client{Transport: newTestRetryTransport()}

			// when
			resp, err := client.Get(server.URL)

			// then
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			assert.Equal(t, tt.expectedCalls, calls.Load())
		})
	}

	t.Run("should replay request body on retry", func(t *testing.T) {
		// given
		server, calls := statusSequenceServer(t, 502, 200)
		client := &http.Client{Transport: newTestRetryTransport()}

		// when
		resp, err := client.Post(server.URL, "text/plain", strings.NewReader("grant_type=refresh_token"))

		// then
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "grant_type=refresh_token", string(body))
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("should retry connection failures", func(t *testing.T) {
		// given
		base := &failingRoundTripper{failures: 2, next: http.DefaultTransport}
		transport := newTestRetryTransport()
		transport.Base = base
		server, _ := statusSequenceServer(t, 200)
		client := &http.Client{Transport: transport}

		// when
		resp, err := client.Get(server.URL)

		// then
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 3, base.calls)
	})

	t.Run("should give up after three connection failures", func(t *testing.T) {
		// given
		base := &failingRoundTripper{failures: 5, next: http.DefaultTransport}
		transport := newTestRetryTransport()
		transport.Base = base
		client := &http.Client{Transport: transport}

		// when
		_, err := client.Get("http://example.invalid/")

		// then
		require.Error(t, err)
		assert.ErrorIs(t, err, errConnectionRefused)
		assert.Equal(t, DefaultMaxAttempts, base.calls)
	})

	t.Run("should stop when context is cancelled", func(t *testing.T) {
		// given
		base := &failingRoundTripper{failures: 5, next: http.DefaultTransport}
		transport := newTestRetryTransport()
		transport.Base = base
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.invalid/", nil)
		require.NoError(t, err)

		// when
		_, err = transport.RoundTrip(req)

		// then
		require.Error(t, err)
		assert.Equal(t, 1, base.calls)
	})
}

var errConnectionRefused = errors.New("connection refused")

type failingRoundTripper struct {
	mu       sync.Mutex
	failures int
	calls    int
	next     http.RoundTripper
}

func (f *failingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return nil, errConnectionRefused
	}
	return f.next.RoundTrip(req)
}

type tokenSourceStub struct {
	mu           sync.Mutex
	token        string
	refreshed    string
	refreshCalls int
	refreshErr   error
	ensureErr    error
}

func (s *tokenSourceStub) EnsureFresh(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.ensureErr
}

func (s *tokenSourceStub) ForceRefresh(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCalls++
	if s.refreshErr != nil {
		return "", s.refreshErr
	}
	s.token = s.refreshed
	return s.token, nil
}

func TestAuthorizedTransport_RoundTrip(t *testing.T) {
	t.Run("should refresh once and retry on 401", func(t *testing.T) {
		// given
		var seen []string
		var mu sync.Mutex
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			seen = append(seen, r.Header.Get("Authorization"))
			mu.Unlock()
			if r.Header.Get("Authorization") != "Bearer new" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()
		source := &tokenSourceStub{token: "stale", refreshed: "new"}
		client := &http.Client{Transport: NewAuthorizedTransport(source, http.DefaultTransport)}

		// when
		resp, err := client.Get(server.URL)

		// then
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, []string{"Bearer stale", "Bearer new"}, seen)
		assert.Equal(t, 1, source.refreshCalls)
	})

	t.Run("should return second 401 without another refresh", func(t *testing.T) {
		// given
		server, calls := statusSequenceServer(t, 401)
		source := &tokenSourceStub{token: "stale", refreshed: "still-bad"}
		client := &http.Client{Transport: NewAuthorizedTransport(source, http.DefaultTransport)}

		// when
		resp, err := client.Get(server.URL)

		// then
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, int32(2), calls.Load())
		assert.Equal(t, 1, source.refreshCalls)
	})

	t.Run("should propagate refresh error", func(t *testing.T) {
		// given
		server, _ := statusSequenceServer(t, 401)
		refreshErr := &AuthRefreshError{Err: errors.New("invalid_grant")}
		source := &tokenSourceStub{token: "stale", refreshErr: refreshErr}
		client := &http.Client{Transport: NewAuthorizedTransport(source, http.DefaultTransport)}

		// when
		_, err := client.Get(server.URL)

		// then
		var target *AuthRefreshError
		assert.ErrorAs(t, err, &target)
	})

	t.Run("should not call upstream without token", func(t *testing.T) {
		// given
		server, calls := statusSequenceServer(t, 200)
		source := &tokenSourceStub{ensureErr: ErrUnauthenticated}
		client := &http.Client{Transport: NewAuthorizedTransport(source, http.DefaultTransport)}

		// when
		_, err := client.Get(server.URL)

		// then
		assert.ErrorIs(t, err, ErrUnauthenticated)
		assert.Equal(t, int32(0), calls.Load())
	})
}
