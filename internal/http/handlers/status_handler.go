// Status and notification HTTP handlers.
//
// This file exposes:
//   - GET  /quota  (monthly platform-write quota)
//   - GET  /usage  (caller's daily generation allowance)
//   - GET  /config (client-facing configuration)
//   - POST /email  (mail generated options to the owner)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-banger-backend/internal/http/middleware"
	"github.com/tbourn/go-banger-backend/internal/notify"
)

// QuotaResponse reports the monthly platform-write quota.
type QuotaResponse struct {
	RemainingWrites int `json:"remaining_writes"`
	MonthlyLimit    int `json:"monthly_limit"`
}

// Quota returns the remaining platform writes for the current month.
func (h *Handlers) Quota(c *gin.Context) {
	ok(c, http.StatusOK, QuotaResponse{
		RemainingWrites: h.ledger.RemainingQuota(),
		MonthlyLimit:    h.MonthlyLimit,
	})
}

// Usage returns the caller's daily generation allowance. Anonymous callers
// share the anonymous free-tier bucket.
func (h *Handlers) Usage(c *gin.Context) {
	ok(c, http.StatusOK, h.usage.Status(c.Request.Context(), middleware.UserIDFrom(c)))
}

// ConfigResponse is the client-facing configuration.
type ConfigResponse struct {
	RemainingWrites int    `json:"remaining_writes"`
	CommunityURL    string `json:"community_url,omitempty"`
}

// Config returns the configuration the web client needs at startup.
func (h *Handlers) Config(c *gin.Context) {
	ok(c, http.StatusOK, ConfigResponse{
		RemainingWrites: h.ledger.RemainingQuota(),
		CommunityURL:    h.CommunityURL,
	})
}

// EmailRequest is the JSON payload for mailing generated options.
type EmailRequest struct {
	Subject string   `json:"subject"`
	Options []string `json:"options"`
}

// Email sends the given options to the owner's inbox.
//
// Responses:
//   - 200 {"ok": true}
//   - 400 when the payload is invalid or has no options
//   - 500 when the mailer is not configured or the provider rejected the send
func (h *Handlers) Email(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if len(req.Options) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "options are required")
		return
	}

	if err := h.mailer.SendOptions(c.Request.Context(), req.Subject, req.Options); err != nil {
		if errors.Is(err, notify.ErrNotConfigured) {
			fail(c, http.StatusInternalServerError, ErrCodeEmailFailed,
				"email not configured (set RESEND_API_KEY, FROM_USER, TO_EMAIL)")
			return
		}
		middleware.LoggerFrom(c).Error().Err(err).Msg("email send failed")
		fail(c, http.StatusInternalServerError, ErrCodeEmailFailed, "email send failed")
		return
	}
	ok(c, http.StatusOK, gin.H{"ok": true})
}
