// Publication HTTP handlers.
//
// This file exposes:
//   - POST /post   (publish via the platform API, or record an out-of-band post)
//   - POST /record (record a post attempt without publishing)
//
// Publication failures that come from the admission gates (empty text,
// over-length, duplicate, exhausted quota) or from the platform are normal
// negative outcomes: the response is 200 with success=false and the reason in
// the error field, so clients can branch without parsing HTTP statuses.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-banger-backend/internal/domain"
	"github.com/tbourn/go-banger-backend/internal/platform"
)

// PostRequest is the JSON payload for publishing or recording a post.
type PostRequest struct {
	// Text is the post body.
	Text string `json:"text"`
	// Method selects the path: "api" publishes through the platform,
	// "manual" and "community" record a post made elsewhere.
	Method string `json:"method"`
}

// PostResponse reports the outcome of a publish or record call.
type PostResponse struct {
	Success   bool   `json:"success"`
	TweetID   string `json:"tweet_id,omitempty"`
	TweetURL  string `json:"tweet_url,omitempty"`
	Error     string `json:"error,omitempty"`
	Remaining int    `json:"remaining"`
	IntentURL string `json:"intent_url,omitempty"`
}

// Post publishes text to the platform (method "api") or records an
// out-of-band post (methods "manual" and "community").
//
// Responses:
//   - 200 with PostResponse (success may be false; see Error)
//   - 400 when text is empty or method is unknown
func (h *Handlers) Post(c *gin.Context) {
	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "empty text")
		return
	}
	methodStr := req.Method
	if methodStr == "" {
		methodStr = string(domain.MethodAPI)
	}
	method, valid := domain.ParseMethod(methodStr)
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "method must be 'api', 'manual', or 'community'")
		return
	}

	intent := platform.IntentURL(text)

	if method == domain.MethodAPI {
		res := h.ledger.Publish(c.Request.Context(), text)
		ok(c, http.StatusOK, PostResponse{
			Success:   res.Success,
			TweetID:   res.PlatformID,
			TweetURL:  res.PlatformURL,
			Error:     res.Err,
			Remaining: res.Remaining,
			IntentURL: intent,
		})
		return
	}

	rec := h.ledger.Record(c.Request.Context(), text, method, "")
	resp := PostResponse{
		Success:   true,
		Remaining: h.ledger.RemainingQuota(),
		IntentURL: intent,
	}
	if rec != nil {
		resp.TweetID = rec.PlatformID
		resp.TweetURL = rec.PlatformURL
	}
	ok(c, http.StatusOK, resp)
}

// RecordRequest is the JSON payload for recording a post attempt.
type RecordRequest struct {
	Text string `json:"text"`
	// Method defaults to "manual".
	Method string `json:"method"`
	// PlatformID optionally attaches the platform's post id, e.g. when the
	// post was published from another device.
	PlatformID string `json:"platform_id"`
}

// RecordResponse echoes the ledger record a recording resolved to.
type RecordResponse struct {
	ID          string `json:"id"`
	Method      string `json:"method"`
	Month       string `json:"month"`
	PlatformID  string `json:"platform_id,omitempty"`
	PlatformURL string `json:"platform_url,omitempty"`
	Remaining   int    `json:"remaining"`
}

// Record writes a post attempt to the ledger without contacting the
// platform. Recording the same text again within the duplicate window
// resolves to the existing record; a late platform id is attached to it.
//
// Responses:
//   - 200 with RecordResponse
//   - 400 when text is empty or method is unknown
func (h *Handlers) Record(c *gin.Context) {
	var req RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	methodStr := req.Method
	if methodStr == "" {
		methodStr = string(domain.MethodManual)
	}
	method, valid := domain.ParseMethod(methodStr)
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "method must be 'api', 'manual', or 'community'")
		return
	}

	rec := h.ledger.Record(c.Request.Context(), req.Text, method, strings.TrimSpace(req.PlatformID))
	if rec == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "empty text")
		return
	}

	ok(c, http.StatusOK, RecordResponse{
		ID:          rec.ID,
		Method:      string(rec.Method),
		Month:       rec.MonthKey,
		PlatformID:  rec.PlatformID,
		PlatformURL: rec.PlatformURL,
		Remaining:   h.ledger.RemainingQuota(),
	})
}
