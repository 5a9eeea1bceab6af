package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "anon-key", "service-key", 5*time.Second)
}

func TestResolve_Success(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/user" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer user-token" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.Header.Get("apikey"); got != "anon-key" {
			t.Errorf("apikey = %q", got)
		}
		_ = json.NewEncoder(w).Encode(User{ID: "u-123", Email: "dev@example.com"})
	})

	u, err := c.Resolve(context.Background(), "user-token")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if u.ID != "u-123" || u.Email != "dev@example.com" {
		t.Fatalf("user = %+v", u)
	}
}

func TestResolve_Unauthorized(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	if _, err := c.Resolve(context.Background(), "stale"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v; want ErrUnauthorized", err)
	}
	if _, err := c.Resolve(context.Background(), ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty token err = %v; want ErrUnauthorized", err)
	}
}

func TestResolve_EmptyUserRejected(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(User{})
	})

	if _, err := c.Resolve(context.Background(), "token"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v; want ErrUnauthorized", err)
	}
}

func TestIsPaid(t *testing.T) {
	cases := []struct {
		name string
		rows []map[string]string
		want bool
	}{
		{"active subscription", []map[string]string{{"status": "active"}}, true},
		{"cancelled subscription", []map[string]string{{"status": "cancelled"}}, false},
		{"no rows", []map[string]string{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				if got := r.URL.Query().Get("user_id"); got != "eq.u-123" {
					t.Errorf("user_id filter = %q", got)
				}
				if got := r.Header.Get("apikey"); got != "service-key" {
					t.Errorf("apikey = %q", got)
				}
				_ = json.NewEncoder(w).Encode(tc.rows)
			})

			paid, err := c.IsPaid(context.Background(), "u-123")
			if err != nil {
				t.Fatalf("IsPaid: %v", err)
			}
			if paid != tc.want {
				t.Fatalf("paid = %v; want %v", paid, tc.want)
			}
		})
	}
}

func TestIsPaid_BackendErrorPropagates(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	if _, err := c.IsPaid(context.Background(), "u-123"); err == nil {
		t.Fatal("expected error from failing backend")
	}
}

func TestConfigured(t *testing.T) {
	if (&Client{}).Configured() {
		t.Fatal("empty client reported configured")
	}
	var nilClient *Client
	if nilClient.Configured() {
		t.Fatal("nil client reported configured")
	}
}
