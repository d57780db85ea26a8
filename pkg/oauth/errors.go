package oauth

import (
	"errors"
	"fmt"
)

var ErrUnauthenticated = errors.New("no OAuth token available, authorization is required")

// AuthExchangeError means the authorization code was rejected or the token
// response was malformed. The user has to restart the link flow.
type AuthExchangeError struct {
	Err error
}

func (e *AuthExchangeError) Error() string {
	return fmt.Sprintf("unable to exchange authorization code for token: %v", e.Err)
}

func (e *AuthExchangeError) Unwrap() error {
	return e.Err
}

// AuthRefreshError means the refresh token was rejected by the provider.
// The account has to be linked again.
type AuthRefreshError struct {
	Err error
}

func (e *AuthRefreshError) Error() string {
	return fmt.Sprintf("refresh token rejected, re-authorization is required: %v", e.Err)
}

func (e *AuthRefreshError) Unwrap() error {
	return e.Err
}
