// Package identity resolves the requesting user from a Supabase access token
// and answers plan (paid vs free) lookups for the usage tracker. Both calls
// go straight to the Supabase HTTP surface; no session state is kept here.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthorized is returned when the access token is missing, expired, or
// rejected by the auth backend.
var ErrUnauthorized = errors.New("invalid or expired access token")

// User is the authenticated caller.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Client talks to a Supabase deployment's auth and REST endpoints.
type Client struct {
	// BaseURL is the project URL, e.g. "https://abc.supabase.co".
	BaseURL string
	// AnonKey authenticates user-scoped auth calls.
	AnonKey string
	// ServiceKey authenticates server-side table reads.
	ServiceKey string
	// HTTPClient is used for requests; defaulted when nil.
	HTTPClient *http.Client
}

// NewClient constructs a Client.
func NewClient(baseURL, anonKey, serviceKey string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AnonKey:    anonKey,
		ServiceKey: serviceKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Configured reports whether the client has enough settings to be used.
func (c *Client) Configured() bool {
	return c != nil && c.BaseURL != "" && c.AnonKey != ""
}

// Resolve validates accessToken against the auth backend and returns the
// user it belongs to. An empty or rejected token yields ErrUnauthorized.
func (c *Client) Resolve(ctx context.Context, accessToken string) (*User, error) {
	if accessToken == "" {
		return nil, ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.AnonKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("auth backend: status %d", resp.StatusCode)
	}

	var u User
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, ErrUnauthorized
	}
	return &u, nil
}

// IsPaid reports whether userID has an active subscription row. A user with
// no row is free tier, not an error.
func (c *Client) IsPaid(ctx context.Context, userID string) (bool, error) {
	url := fmt.Sprintf("%s/rest/v1/subscriptions?user_id=eq.%s&select=status", c.BaseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("apikey", c.ServiceKey)
	req.Header.Set("Authorization", "Bearer "+c.ServiceKey)

	resp, err := c.client().Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("subscription lookup: status %d", resp.StatusCode)
	}

	var rows []struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&rows); err != nil {
		return false, err
	}
	for _, row := range rows {
		if row.Status == "active" {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}
