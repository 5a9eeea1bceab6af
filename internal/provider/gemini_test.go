package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newGeminiServer(t *testing.T, handler http.HandlerFunc) (*Gemini, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGemini(srv.URL, "test-key", "test-model", 5*time.Second), srv
}

func TestGemini_Generate_Success(t *testing.T) {
	var gotTemp float64
	g, _ := newGeminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotTemp = req.GenerationConfig.Temperature
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "  Today's wins:\n→ shipped\n"}}}},
			},
		})
	})

	text, err := g.Generate(context.Background(), "write the post", 0.7)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "Today's wins:\n→ shipped" {
		t.Fatalf("text = %q", text)
	}
	if gotTemp != 0.7 {
		t.Fatalf("temperature = %v; want 0.7", gotTemp)
	}
}

func TestGemini_Generate_EmptyCompletion(t *testing.T) {
	g, _ := newGeminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	})

	_, err := g.Generate(context.Background(), "p", 0.5)
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestGemini_Generate_APIError(t *testing.T) {
	g, _ := newGeminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 429, "message": "quota exceeded"},
		})
	})

	_, err := g.Generate(context.Background(), "p", 0.5)
	if err == nil {
		t.Fatalf("expected error on 429")
	}
}

func TestGemini_Generate_ContextTimeout(t *testing.T) {
	g, _ := newGeminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := g.Generate(ctx, "p", 0.5); err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestStripCodeFences(t *testing.T) {
	in := "```\nline one\nline two\n```"
	if got := stripCodeFences(in); got != "line one\nline two" {
		t.Fatalf("stripCodeFences = %q", got)
	}
	// Untouched when no fences.
	if got := stripCodeFences("plain"); got != "plain" {
		t.Fatalf("stripCodeFences(plain) = %q", got)
	}
}
