// Generation HTTP handler.
//
// This file exposes:
//   - POST /generate (draft post options from raw notes)
//
// The handler checks the daily allowance of resolved users, serves repeat
// requests from the options cache, and counts only fresh generations against
// the allowance. Anonymous callers are not metered per user; the IP-keyed
// rate limiter covers them. Timing and cache outcome are surfaced via the
// X-Gen-Time-Ms and X-Cache-Hit response headers.
package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-banger-backend/internal/cache"
	"github.com/tbourn/go-banger-backend/internal/generate"
	"github.com/tbourn/go-banger-backend/internal/http/middleware"
)

// GenerateRequest is the JSON payload for drafting post options.
type GenerateRequest struct {
	// TodayContext is the raw notes to structure, e.g. "fixed auth, added stripe".
	TodayContext string `json:"today_context"`
	// CurrentMood colors the tone, e.g. "hyped", "tired but happy".
	CurrentMood string `json:"current_mood"`
	// OptionalAngle is the forward-looking closer, e.g. "shipping tomorrow".
	OptionalAngle string `json:"optional_angle"`
}

// GenerateResponse carries the drafted options plus request metadata.
type GenerateResponse struct {
	Mode            string   `json:"mode"`
	RemainingWrites int      `json:"remaining_writes"`
	Options         []string `json:"options"`
	GenTimeMs       float64  `json:"gen_time_ms"`
	CacheHit        bool     `json:"cache_hit"`
}

// Generate drafts post options for the caller's notes.
//
// Responses:
//   - 200 with GenerateResponse
//   - 400 when any of the three context fields is missing
//   - 429 when the caller's daily allowance is spent
//   - 500 when every generation attempt failed
func (h *Handlers) Generate(c *gin.Context) {
	start := time.Now()

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	notes := strings.TrimSpace(req.TodayContext)
	mood := strings.TrimSpace(req.CurrentMood)
	angle := strings.TrimSpace(req.OptionalAngle)
	if notes == "" || mood == "" || angle == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest,
			"today_context, current_mood, and optional_angle are required")
		return
	}

	userID := middleware.UserIDFrom(c)
	if userID != "" {
		if allowed, _, reason := h.usage.CanGenerate(c.Request.Context(), userID); !allowed {
			fail(c, http.StatusTooManyRequests, ErrCodeLimitReached, "daily generation limit reached ("+reason+")")
			return
		}
	}

	mode := h.gen.Mode()
	key := cache.Key{Mode: mode, Context: notes, Mood: mood, Angle: angle}

	if options, hit := h.cache.Get(key); hit {
		h.respond(c, start, GenerateResponse{
			Mode:            mode,
			RemainingWrites: h.ledger.RemainingQuota(),
			Options:         options,
			CacheHit:        true,
		})
		return
	}

	res, err := h.gen.Options(c.Request.Context(), mode, generate.Context{
		Notes: notes,
		Mood:  mood,
		Angle: angle,
	})
	if err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Str("mode", mode).Msg("generation failed")
		fail(c, http.StatusInternalServerError, ErrCodeGenerationFailed, "generation failed")
		return
	}

	h.cache.Set(key, res.Options)
	if userID != "" {
		h.usage.Increment(c.Request.Context(), userID)
	}

	h.respond(c, start, GenerateResponse{
		Mode:            res.Mode,
		RemainingWrites: h.ledger.RemainingQuota(),
		Options:         res.Options,
	})
}

// respond fills in timing, sets the diagnostic headers, and writes the body.
func (h *Handlers) respond(c *gin.Context, start time.Time, resp GenerateResponse) {
	ms := float64(time.Since(start).Microseconds()) / 1000.0
	resp.GenTimeMs = ms

	c.Header("X-Gen-Time-Ms", fmt.Sprintf("%.1f", ms))
	if resp.CacheHit {
		c.Header("X-Cache-Hit", "1")
	} else {
		c.Header("X-Cache-Hit", "0")
	}
	ok(c, http.StatusOK, resp)
}
