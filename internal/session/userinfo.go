package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var ErrMissingAccessToken = errors.New("access token is required")

// UserinfoClient exchanges an OAuth access token for identity claims.
type UserinfoClient struct {
	url  string
	http *http.Client
}

func NewUserinfoClient(url string, client *http.Client) *UserinfoClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &UserinfoClient{url: url, http: client}
}

func (c *UserinfoClient) Fetch(ctx context.Context, accessToken string) (Session, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return Session{}, ErrMissingAccessToken
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Session{}, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Session{}, fmt.Errorf("userinfo request: unexpected status %d", resp.StatusCode)
	}

	var claims identityClaims
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&claims); err != nil {
		return Session{}, fmt.Errorf("decode userinfo: %w", err)
	}
	return claims.session()
}
