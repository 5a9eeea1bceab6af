// Package notify sends generated options to the owner's inbox through the
// Resend HTTP API.
package notify

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

// defaultAPIBase is the production Resend endpoint.
const defaultAPIBase = "https://api.resend.com"

// ErrNotConfigured is returned when the mailer is missing its API key or an
// address.
var ErrNotConfigured = errors.New("email not configured")

// Mailer sends transactional email via Resend.
type Mailer struct {
	// APIBase overrides the Resend endpoint; empty means production.
	APIBase string
	// APIKey is the Resend API key.
	APIKey string
	// FromAddr is the sender address.
	FromAddr string
	// ToAddr is the default recipient.
	ToAddr string
	// HTTPClient is used for requests; defaulted when nil.
	HTTPClient *http.Client
}

// NewMailer constructs a Mailer for the production endpoint.
func NewMailer(apiKey, fromAddr, toAddr string, timeout time.Duration) *Mailer {
	return &Mailer{
		APIKey:     apiKey,
		FromAddr:   fromAddr,
		ToAddr:     toAddr,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// SendOptions mails the given post options, separated by a rule, to the
// configured recipient.
func (m *Mailer) SendOptions(ctx context.Context, subject string, options []string) error {
	var kept []string
	for _, o := range options {
		if o = strings.TrimSpace(o); o != "" {
			kept = append(kept, o)
		}
	}
	return m.Send(ctx, subject, strings.Join(kept, "\n\n---\n\n"))
}

// Send mails body under subject to the configured recipient.
func (m *Mailer) Send(ctx context.Context, subject, body string) error {
	if m.APIKey == "" || m.FromAddr == "" || m.ToAddr == "" {
		return ErrNotConfigured
	}

	payload, err := json.Marshal(sendRequest{
		From:    m.FromAddr,
		To:      m.ToAddr,
		Subject: subject,
		HTML:    body,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.base()+"/emails", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("resend: status %d: %s", resp.StatusCode, string(raw))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (m *Mailer) base() string {
	if m.APIBase != "" {
		return strings.TrimRight(m.APIBase, "/")
	}
	return defaultAPIBase
}

func (m *Mailer) client() *http.Client {
	if m.HTTPClient != nil {
		return m.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}
