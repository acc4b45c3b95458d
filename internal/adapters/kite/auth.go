package kite

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// checksum es sha256(api_key + request_token + api_secret) en hex.
func checksum(apiKey, requestToken, apiSecret string) string {
	sum := sha256.Sum256([]byte(apiKey + requestToken + apiSecret))
	return hex.EncodeToString(sum[:])
}

// GenerateSession exchanges the request token from the login redirect for an
// access token and installs it on the client. The token is not stored.
func (c *Client) GenerateSession(ctx context.Context, requestToken string) (string, error) {
	if requestToken == "" {
		return "", errors.New("kite.GenerateSession: empty request token")
	}
	if c.apiKey == "" || c.apiSecret == "" {
		return "", errors.New("kite.GenerateSession: api key and secret are required")
	}

	form := url.Values{
		"api_key":       {c.apiKey},
		"request_token": {requestToken},
		"checksum":      {checksum(c.apiKey, requestToken, c.apiSecret)},
	}

	var raw sessionResponse
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/session/token",
		form:     form,
		limiter:  c.generalLimiter,
		attempts: 1,
		noAuth:   true,
	}, envelopeDecoder(&raw))
	if err != nil {
		return "", fmt.Errorf("kite.GenerateSession: %w", err)
	}
	if raw.AccessToken == "" {
		return "", errors.New("kite.GenerateSession: response has no access token")
	}

	c.SetAccessToken(raw.AccessToken)
	return raw.AccessToken, nil
}
