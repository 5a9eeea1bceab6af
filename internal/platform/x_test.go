package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newXServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "token", 5*time.Second)
}

func TestCreatePost_Success(t *testing.T) {
	c := newXServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/tweets" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("authorization = %q", got)
		}
		var req createPostRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Text != "hello" {
			t.Errorf("text = %q", req.Text)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": "12345"}})
	})

	id, err := c.CreatePost(context.Background(), "hello")
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if id != "12345" {
		t.Fatalf("id = %q", id)
	}
}

func TestCreatePost_TypedErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   map[string]any
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, nil, ErrRateLimited},
		{"auth expired", http.StatusUnauthorized, nil, ErrAuthExpired},
		{"duplicate", http.StatusForbidden, map[string]any{"detail": "You are not allowed to create a Tweet with duplicate content."}, ErrDuplicate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newXServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				if tc.body != nil {
					_ = json.NewEncoder(w).Encode(tc.body)
				}
			})
			_, err := c.CreatePost(context.Background(), "hello")
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v; want %v", err, tc.want)
			}
		})
	}
}

func TestCreatePost_OtherErrorVerbatim(t *testing.T) {
	c := newXServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{"detail": "account suspended"})
	})

	_, err := c.CreatePost(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "account suspended") {
		t.Fatalf("expected verbatim detail, got %v", err)
	}
}

func TestPostURL(t *testing.T) {
	if got := PostURL("987"); got != "https://x.com/i/web/status/987" {
		t.Fatalf("PostURL = %q", got)
	}
	if got := PostURL(""); got != "" {
		t.Fatalf("PostURL(empty) = %q; want empty", got)
	}
}

func TestIntentURL(t *testing.T) {
	got := IntentURL("hello world")
	if !strings.HasPrefix(got, "https://twitter.com/intent/tweet?") {
		t.Fatalf("IntentURL = %q", got)
	}
	if !strings.Contains(got, "text=hello+world") {
		t.Fatalf("IntentURL missing encoded text: %q", got)
	}
}
