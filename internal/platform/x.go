// Package platform implements the outbound social-posting client for X
// (Twitter) API v2, plus the URL helpers derived from platform post ids.
//
// Failures the caller can act on are surfaced as typed sentinels
// (ErrRateLimited, ErrDuplicate, ErrAuthExpired); anything else is returned
// verbatim so the ledger can pass the platform's own wording through to the
// API response unmodified.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Typed platform failures.
var (
	// ErrRateLimited maps HTTP 429 from the platform.
	ErrRateLimited = errors.New("rate_limited")
	// ErrDuplicate maps the platform's own duplicate-content rejection (403).
	ErrDuplicate = errors.New("duplicate")
	// ErrAuthExpired maps HTTP 401 (credentials revoked or expired).
	ErrAuthExpired = errors.New("auth_expired")
)

// Client posts to the X API v2.
type Client struct {
	// APIBase is the scheme+host, e.g. "https://api.x.com".
	APIBase string
	// AccessToken is the OAuth2 user-context bearer token.
	AccessToken string
	// HTTPClient is used for requests; defaulted when nil.
	HTTPClient *http.Client
}

// NewClient constructs an X API client.
func NewClient(apiBase, accessToken string, timeout time.Duration) *Client {
	return &Client{
		APIBase:     strings.TrimRight(apiBase, "/"),
		AccessToken: accessToken,
		HTTPClient:  &http.Client{Timeout: timeout},
	}
}

type createPostRequest struct {
	Text string `json:"text"`
}

type createPostResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
	Detail string `json:"detail"`
	Title  string `json:"title"`
}

// CreatePost publishes text and returns the platform-assigned post id.
func (c *Client) CreatePost(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(createPostRequest{Text: text})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBase+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	var out createPostResponse
	_ = json.Unmarshal(raw, &out) // body may be empty or non-JSON on errors

	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
		if out.Data.ID == "" {
			return "", fmt.Errorf("platform returned no post id (status %d)", resp.StatusCode)
		}
		return out.Data.ID, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return "", ErrAuthExpired
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", ErrRateLimited
	case resp.StatusCode == http.StatusForbidden && looksLikeDuplicate(out.Detail, out.Title):
		return "", ErrDuplicate
	default:
		detail := out.Detail
		if detail == "" {
			detail = strings.TrimSpace(string(raw))
		}
		return "", fmt.Errorf("platform error (status %d): %s", resp.StatusCode, detail)
	}
}

// looksLikeDuplicate matches the platform's duplicate-content rejection text.
func looksLikeDuplicate(fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), "duplicate") {
			return true
		}
	}
	return false
}

// PostURL derives the canonical post URL for a platform id.
func PostURL(id string) string {
	if id == "" {
		return ""
	}
	return "https://x.com/i/web/status/" + id
}

// IntentURL builds the web-intent URL used for manual posting flows.
func IntentURL(text string) string {
	v := url.Values{}
	v.Set("text", text)
	return "https://twitter.com/intent/tweet?" + v.Encode()
}
