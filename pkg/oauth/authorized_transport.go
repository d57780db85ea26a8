package oauth

import (
	"context"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"
)

type AccessTokenSource interface {
	EnsureFresh(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// AuthorizedTransport attaches a bearer token to every request. A 401
// response triggers exactly one forced refresh and a single retry.
type AuthorizedTransport struct {
	source AccessTokenSource
	base   http.RoundTripper
}

func NewAuthorizedTransport(source AccessTokenSource, base http.RoundTripper) *AuthorizedTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &AuthorizedTransport{source: source, base: base}
}

func (t *AuthorizedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	accessToken, err := t.source.EnsureFresh(req.Context())
	if err != nil {
		return nil, err
	}

	resp, err := t.base.RoundTrip(withBearer(req, accessToken))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	retry, err := rewind(req, 2)
	if err != nil {
		return resp, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	log.Debugf("Request %s %s was unauthorized, forcing token refresh", req.Method, req.URL.Redacted())
	accessToken, err = t.source.ForceRefresh(req.Context())
	if err != nil {
		return nil, err
	}
	return t.base.RoundTrip(withBearer(retry, accessToken))
}

func withBearer(req *http.Request, accessToken string) *http.Request {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+accessToken)
	return r
}
