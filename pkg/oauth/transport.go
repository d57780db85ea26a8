package oauth

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/klokku/outlook-calendar/internal/metrics"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultMaxAttempts = 3
	DefaultHTTPTimeout = 10 * time.Second
)

var retryableStatus = map[int]bool{
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// RetryTransport retries connection failures and 500/502/503/504 responses.
// 4xx responses are returned on the first attempt. When every attempt ends in
// a retryable status, the last response is returned to the caller.
type RetryTransport struct {
	Base        http.RoundTripper
	MaxAttempts int
	newBackOff  func() backoff.BackOff
}

func NewRetryTransport(base http.RoundTripper) *RetryTransport {
	return &RetryTransport{
		Base:        base,
		MaxAttempts: DefaultMaxAttempts,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
}

// NewHTTPClient returns the client used for every provider call: retries
// plus a conservative overall timeout.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   DefaultHTTPTimeout,
		Transport: NewRetryTransport(http.DefaultTransport),
	}
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	attempt := 0

	operation := func() error {
		attempt++
		r, err := rewind(req, attempt)
		if err != nil {
			return backoff.Permanent(err)
		}

		res, err := t.base().RoundTrip(r)
		if err != nil {
			if req.Context().Err() != nil {
				return backoff.Permanent(err)
			}
			log.Debugf("Request %s %s failed (attempt %d/%d): %v", req.Method, req.URL.Redacted(), attempt, t.MaxAttempts, err)
			if attempt < t.MaxAttempts {
				metrics.HTTPRetries.Inc()
			}
			return err
		}

		if retryableStatus[res.StatusCode] && attempt < t.MaxAttempts {
			log.Debugf("Request %s %s returned %d (attempt %d/%d), retrying", req.Method, req.URL.Redacted(), res.StatusCode, attempt, t.MaxAttempts)
			_, _ = io.Copy(io.Discard, res.Body)
			res.Body.Close()
			metrics.HTTPRetries.Inc()
			return fmt.Errorf("retryable status %d", res.StatusCode)
		}

		resp = res
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(t.newBackOff(), uint64(t.MaxAttempts-1)), req.Context())
	if err := backoff.Retry(operation, b); err != nil {
		return nil, err
	}
	return resp, nil
}

func (t *RetryTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// rewind returns a request whose body can be sent again on retry.
func rewind(req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 1 || req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	r := req.Clone(req.Context())
	r.Body = body
	return r, nil
}
