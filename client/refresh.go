package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/habedi/rebaton/db"
)

// RefreshPath is the backend endpoint that exchanges a refresh token.
const RefreshPath = "/api/v1/auth/refresh"

// RefreshClient implements the auth.TokenRefresher interface against the backend.
// It talks to the endpoint directly so a refresh never re-enters the coordinator.
type RefreshClient struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
}

// PerformTokenRefresh sends the refresh token to the backend and returns the new pair.
// Any non-2xx status or a body without both tokens is an error.
func (c *RefreshClient) PerformTokenRefresh(ctx context.Context, refreshToken string) (*db.Credentials, error) {
	payload, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, fmt.Errorf("failed to encode refresh request: %w", err)
	}

	urlStr := strings.TrimRight(c.BaseURL, "/") + RefreshPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to post token refresh: %w", err)
	}
	defer closeResponseBody(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token refresh response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("token refresh failed with status %d: %s", resp.StatusCode, strings.TrimSpace(preview(body)))
	}

	var result struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse token refresh response: %w", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		return nil, fmt.Errorf("token refresh response is missing tokens")
	}

	return &db.Credentials{AccessToken: result.AccessToken, RefreshToken: result.RefreshToken}, nil
}
