package oauth

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Token is the persisted OAuth token record. ExpiresAt is derived from
// expires_in when the token is issued so the expiry survives a restart.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// UnmarshalJSON also reads records written by requests-oauthlib, which keep
// expires_at as epoch seconds and scope as a list.
func (t *Token) UnmarshalJSON(data []byte) error {
	type plain Token
	var raw struct {
		plain
		Scope     json.RawMessage `json:"scope"`
		ExpiresAt json.RawMessage `json:"expires_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	token := Token(raw.plain)

	scope, err := parseScope(raw.Scope)
	if err != nil {
		return err
	}
	token.Scope = scope

	expiresAt, err := parseExpiresAt(raw.ExpiresAt)
	if err != nil {
		return err
	}
	token.ExpiresAt = expiresAt

	*t = token
	return nil
}

func parseScope(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var scope string
	if err := json.Unmarshal(raw, &scope); err == nil {
		return scope, nil
	}
	var scopes []string
	if err := json.Unmarshal(raw, &scopes); err != nil {
		return "", fmt.Errorf("invalid scope: %s", raw)
	}
	return strings.Join(scopes, " "), nil
}

func parseExpiresAt(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}
	var epoch float64
	if err := json.Unmarshal(raw, &epoch); err == nil {
		sec, frac := math.Modf(epoch)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	}
	var expiresAt time.Time
	if err := json.Unmarshal(raw, &expiresAt); err != nil {
		return time.Time{}, fmt.Errorf("invalid expires_at: %s", raw)
	}
	return expiresAt, nil
}

func newToken(t *oauth2.Token, issuedAt time.Time) Token {
	token := Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresIn:    t.ExpiresIn,
		TokenType:    t.TokenType,
		ExpiresAt:    t.Expiry,
	}
	if scope, ok := t.Extra("scope").(string); ok {
		token.Scope = scope
	}
	if token.ExpiresIn > 0 {
		token.ExpiresAt = issuedAt.Add(time.Duration(token.ExpiresIn) * time.Second)
	} else if !t.Expiry.IsZero() {
		token.ExpiresIn = int64(t.Expiry.Sub(issuedAt).Seconds())
	}
	return token
}

func (t Token) oauth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.ExpiresAt,
		ExpiresIn:    t.ExpiresIn,
	}
}
