// Package provider implements the outbound content-generation client.
//
// The orchestrator consumes generation through a narrow interface it defines
// itself; this package supplies the concrete Gemini REST implementation.
// Every call is bounded by the caller's context; a call that does not return
// in time is a failed call, never a hang.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrEmptyCompletion is returned when the model responds without any text.
var ErrEmptyCompletion = errors.New("provider returned empty completion")

// Gemini calls the Google Generative Language REST API.
type Gemini struct {
	// APIBase is the scheme+host, e.g. "https://generativelanguage.googleapis.com".
	APIBase string
	// APIKey authenticates the request (query parameter per the API contract).
	APIKey string
	// Model is the model name, e.g. "gemini-1.5-flash".
	Model string
	// HTTPClient is used for requests; a default client with a sane timeout
	// is used when nil.
	HTTPClient *http.Client
}

// NewGemini constructs a Gemini client.
func NewGemini(apiBase, apiKey, model string, timeout time.Duration) *Gemini {
	return &Gemini{
		APIBase:    strings.TrimRight(apiBase, "/"),
		APIKey:     apiKey,
		Model:      model,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// request/response shapes for generateContent. Only the fields we use.

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate requests one completion for prompt at the given sampling
// temperature and returns the trimmed text. Markdown code fences are
// stripped; an empty body is an error, not a silent empty option.
func (g *Gemini) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{Temperature: temperature},
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.APIBase, g.Model, g.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	client := g.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
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

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode generateContent response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error != nil {
			return "", fmt.Errorf("generateContent failed: %d %s", out.Error.Code, out.Error.Message)
		}
		return "", fmt.Errorf("generateContent failed: status %d", resp.StatusCode)
	}

	var sb strings.Builder
	for _, c := range out.Candidates {
		for _, p := range c.Content.Parts {
			sb.WriteString(p.Text)
		}
		break // first candidate only
	}

	text := stripCodeFences(strings.TrimSpace(sb.String()))
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// stripCodeFences removes ``` fence lines the model sometimes wraps output in.
func stripCodeFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, ln := range lines {
		if strings.HasPrefix(strings.TrimSpace(ln), "```") {
			continue
		}
		kept = append(kept, ln)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
