// Package remote implements the client for the durable remote store (a
// Supabase/PostgREST deployment in production). The ledger and usage
// components consume it through their own narrow interfaces; this package
// only knows how to read and upsert rows.
//
// Transient failures are retried a small bounded number of times with linear
// backoff, mirroring the availability-over-consistency posture of the rest
// of the storage layer: callers are expected to degrade to local state when
// an operation still fails after retries.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Store talks PostgREST to a remote table endpoint.
type Store struct {
	// BaseURL is the project URL, e.g. "https://abc.supabase.co".
	BaseURL string
	// ServiceKey is the service-role key (bypasses row-level security).
	ServiceKey string
	// HTTPClient is used for requests; defaulted when nil.
	HTTPClient *http.Client

	// Retries is the number of attempts per operation (minimum 1).
	Retries int
	// Backoff is the base delay between attempts; attempt n waits n*Backoff.
	Backoff time.Duration
}

// NewStore constructs a Store with the default retry posture (3 attempts,
// 500ms linear backoff).
func NewStore(baseURL, serviceKey string, timeout time.Duration) *Store {
	return &Store{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ServiceKey: serviceKey,
		HTTPClient: &http.Client{Timeout: timeout},
		Retries:    3,
		Backoff:    500 * time.Millisecond,
	}
}

// Configured reports whether the store has enough settings to be used.
func (s *Store) Configured() bool {
	return s != nil && s.BaseURL != "" && s.ServiceKey != ""
}

// SelectAll reads every row of table as generic maps.
func (s *Store) SelectAll(ctx context.Context, table string) ([]map[string]any, error) {
	var rows []map[string]any
	err := s.withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			fmt.Sprintf("%s/rest/v1/%s?select=*", s.BaseURL, table), nil)
		if err != nil {
			return err
		}
		s.auth(req)

		resp, err := s.client().Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("select %s: status %d: %s", table, resp.StatusCode, truncate(raw, 256))
		}
		return json.Unmarshal(raw, &rows)
	})
	return rows, err
}

// Upsert writes row into table, merging on conflictColumn.
func (s *Store) Upsert(ctx context.Context, table string, row map[string]any, conflictColumn string) error {
	body, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return s.withRetry(ctx, func() error {
		url := fmt.Sprintf("%s/rest/v1/%s", s.BaseURL, table)
		if conflictColumn != "" {
			url += "?on_conflict=" + conflictColumn
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		s.auth(req)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")

		resp, err := s.client().Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusMultipleChoices {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
			return fmt.Errorf("upsert %s: status %d: %s", table, resp.StatusCode, truncate(raw, 256))
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	})
}

// withRetry runs op up to Retries times, sleeping n*Backoff between attempts
// and respecting context cancellation.
func (s *Store) withRetry(ctx context.Context, op func() error) error {
	attempts := s.Retries
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i) * s.Backoff):
			}
		}
		if last = op(); last == nil {
			return nil
		}
	}
	return last
}

func (s *Store) client() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (s *Store) auth(req *http.Request) {
	req.Header.Set("apikey", s.ServiceKey)
	req.Header.Set("Authorization", "Bearer "+s.ServiceKey)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "…"
}
