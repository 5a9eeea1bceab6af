package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-banger-backend/internal/cache"
	"github.com/tbourn/go-banger-backend/internal/domain"
	"github.com/tbourn/go-banger-backend/internal/generate"
	"github.com/tbourn/go-banger-backend/internal/http/middleware"
	"github.com/tbourn/go-banger-backend/internal/ledger"
	"github.com/tbourn/go-banger-backend/internal/notify"
	"github.com/tbourn/go-banger-backend/internal/usage"
)

// staticResolver maps any bearer token to a fixed user id so tests can
// exercise the authenticated path without a real identity backend.
type staticResolver struct{ id string }

func (s staticResolver) ResolveUserID(ctx context.Context, token string) (string, error) {
	return s.id, nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeGen struct {
	mode     string
	result   *generate.Result
	err      error
	calls    int
	lastMode string
}

func (f *fakeGen) Mode() string { return f.mode }

func (f *fakeGen) Options(ctx context.Context, mode string, c generate.Context) (*generate.Result, error) {
	f.calls++
	f.lastMode = mode
	return f.result, f.err
}

type fakeCache struct {
	store map[string][]string
}

func (f *fakeCache) Get(key cache.Key) ([]string, bool) {
	v, ok := f.store[key.String()]
	return v, ok
}

func (f *fakeCache) Set(key cache.Key, options []string) {
	f.store[key.String()] = options
}

type fakeLedger struct {
	publishRes   ledger.PublishResult
	publishCalls int
	recorded     []domain.LedgerRecord
	remaining    int
}

func (f *fakeLedger) Publish(ctx context.Context, text string) ledger.PublishResult {
	f.publishCalls++
	return f.publishRes
}

func (f *fakeLedger) Record(ctx context.Context, text string, method domain.PostMethod, platformID string) *domain.LedgerRecord {
	if text == "" || text == "   " {
		return nil
	}
	rec := domain.LedgerRecord{
		ID:         string(method) + "_1",
		MonthKey:   "2024-03",
		Method:     method,
		PlatformID: platformID,
	}
	f.recorded = append(f.recorded, rec)
	return &rec
}

func (f *fakeLedger) RemainingQuota() int { return f.remaining }

type fakeUsage struct {
	allowed     bool
	reason      string
	increments  int
	canGenCalls int
}

func (f *fakeUsage) CanGenerate(ctx context.Context, userID string) (bool, int, string) {
	f.canGenCalls++
	return f.allowed, 1, f.reason
}

func (f *fakeUsage) Increment(ctx context.Context, userID string) { f.increments++ }

func (f *fakeUsage) Status(ctx context.Context, userID string) usage.Status {
	return usage.Status{UserID: "anonymous", Plan: "free", Used: 1, Remaining: 2, DayKey: "2024-03-15"}
}

type fakeMailer struct {
	err     error
	subject string
	options []string
}

func (f *fakeMailer) SendOptions(ctx context.Context, subject string, options []string) error {
	f.subject, f.options = subject, options
	return f.err
}

type env struct {
	gen    *fakeGen
	cache  *fakeCache
	ledger *fakeLedger
	usage  *fakeUsage
	mailer *fakeMailer
	router *gin.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		gen: &fakeGen{
			mode:   "shipping_update",
			result: &generate.Result{Mode: "shipping_update", Options: []string{"opt one", "opt two"}},
		},
		cache:  &fakeCache{store: map[string][]string{}},
		ledger: &fakeLedger{remaining: 42},
		usage:  &fakeUsage{allowed: true, reason: "free_tier"},
		mailer: &fakeMailer{},
	}
	h := New(e.gen, e.cache, e.ledger, e.usage, e.mailer, 280, "https://x.com/i/communities/1")

	r := gin.New()
	r.Use(middleware.Auth(staticResolver{id: "u1"}))
	r.POST("/generate", h.Generate)
	r.POST("/post", h.Post)
	r.POST("/record", h.Record)
	r.GET("/quota", h.Quota)
	r.GET("/usage", h.Usage)
	r.GET("/config", h.Config)
	r.POST("/email", h.Email)
	e.router = r
	return e
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return doRequest(t, r, method, path, body, "")
}

// doAuthedJSON sends the request with a bearer token; the env's resolver maps
// it to user "u1".
func doAuthedJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return doRequest(t, r, method, path, body, "Bearer test-token")
}

func doRequest(t *testing.T, r *gin.Engine, method, path string, body any, auth string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return v
}

func TestGenerate_RequiresAllFields(t *testing.T) {
	e := newEnv(t)
	w := doJSON(t, e.router, http.MethodPost, "/generate", GenerateRequest{TodayContext: "stuff"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", w.Code)
	}
	if got := decode[ErrorResponse](t, w); got.Code != ErrCodeBadRequest {
		t.Fatalf("code = %q", got.Code)
	}
}

func TestGenerate_FreshGeneration(t *testing.T) {
	e := newEnv(t)
	w := doAuthedJSON(t, e.router, http.MethodPost, "/generate", GenerateRequest{
		TodayContext: "fixed auth", CurrentMood: "hyped", OptionalAngle: "shipping tomorrow",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	resp := decode[GenerateResponse](t, w)
	if resp.Mode != "shipping_update" || len(resp.Options) != 2 || resp.CacheHit {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.RemainingWrites != 42 {
		t.Fatalf("remaining_writes = %d", resp.RemainingWrites)
	}
	if w.Header().Get("X-Cache-Hit") != "0" || w.Header().Get("X-Gen-Time-Ms") == "" {
		t.Fatalf("headers = %v", w.Header())
	}
	if e.usage.increments != 1 {
		t.Fatalf("increments = %d; want 1", e.usage.increments)
	}
	if len(e.cache.store) != 1 {
		t.Fatalf("cache entries = %d; want 1", len(e.cache.store))
	}
}

func TestGenerate_CacheHitSkipsGenerationAndCounting(t *testing.T) {
	e := newEnv(t)
	body := GenerateRequest{TodayContext: "fixed auth", CurrentMood: "hyped", OptionalAngle: "shipping tomorrow"}

	doAuthedJSON(t, e.router, http.MethodPost, "/generate", body)
	w := doAuthedJSON(t, e.router, http.MethodPost, "/generate", body)

	resp := decode[GenerateResponse](t, w)
	if !resp.CacheHit {
		t.Fatalf("resp = %+v; want cache hit", resp)
	}
	if w.Header().Get("X-Cache-Hit") != "1" {
		t.Fatalf("X-Cache-Hit = %q", w.Header().Get("X-Cache-Hit"))
	}
	if e.gen.calls != 1 {
		t.Fatalf("generator calls = %d; want 1", e.gen.calls)
	}
	if e.usage.increments != 1 {
		t.Fatalf("increments = %d; want 1 (cache hits are free)", e.usage.increments)
	}
}

func TestGenerate_LimitReached(t *testing.T) {
	e := newEnv(t)
	e.usage.allowed = false
	e.usage.reason = "limit_reached"

	w := doAuthedJSON(t, e.router, http.MethodPost, "/generate", GenerateRequest{
		TodayContext: "x", CurrentMood: "y", OptionalAngle: "z",
	})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d; want 429", w.Code)
	}
	if got := decode[ErrorResponse](t, w); got.Code != ErrCodeLimitReached {
		t.Fatalf("code = %q", got.Code)
	}
	if e.gen.calls != 0 {
		t.Fatalf("generator calls = %d; want 0", e.gen.calls)
	}
}

func TestGenerate_AnonymousIsNotMetered(t *testing.T) {
	e := newEnv(t)
	// An exhausted tracker must not gate anonymous callers.
	e.usage.allowed = false
	e.usage.reason = "limit_reached"

	w := doJSON(t, e.router, http.MethodPost, "/generate", GenerateRequest{
		TodayContext: "fixed auth", CurrentMood: "hyped", OptionalAngle: "shipping tomorrow",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if e.usage.canGenCalls != 0 || e.usage.increments != 0 {
		t.Fatalf("tracker touched for anonymous caller: canGen=%d increments=%d",
			e.usage.canGenCalls, e.usage.increments)
	}
	if e.gen.calls != 1 {
		t.Fatalf("generator calls = %d; want 1", e.gen.calls)
	}
}

func TestGenerate_ModePassedThroughToGenerator(t *testing.T) {
	e := newEnv(t)

	doAuthedJSON(t, e.router, http.MethodPost, "/generate", GenerateRequest{
		TodayContext: "x", CurrentMood: "y", OptionalAngle: "z",
	})
	if e.gen.lastMode != "shipping_update" {
		t.Fatalf("generator received mode %q; want the cache key's mode", e.gen.lastMode)
	}
}

func TestGenerate_FailureIs500(t *testing.T) {
	e := newEnv(t)
	e.gen.result = nil
	e.gen.err = errors.New("no usable generation results")

	w := doJSON(t, e.router, http.MethodPost, "/generate", GenerateRequest{
		TodayContext: "x", CurrentMood: "y", OptionalAngle: "z",
	})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d; want 500", w.Code)
	}
	if got := decode[ErrorResponse](t, w); got.Code != ErrCodeGenerationFailed {
		t.Fatalf("code = %q", got.Code)
	}
	if e.usage.increments != 0 {
		t.Fatalf("increments = %d; want 0 on failure", e.usage.increments)
	}
}

func TestPost_APISuccess(t *testing.T) {
	e := newEnv(t)
	e.ledger.publishRes = ledger.PublishResult{
		Success: true, PlatformID: "555",
		PlatformURL: "https://x.com/i/web/status/555", Remaining: 41,
	}

	w := doJSON(t, e.router, http.MethodPost, "/post", PostRequest{Text: "hello", Method: "api"})
	resp := decode[PostResponse](t, w)
	if !resp.Success || resp.TweetID != "555" || resp.Remaining != 41 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.IntentURL == "" {
		t.Fatal("intent_url missing")
	}
}

func TestPost_GateRejectionIsNormalResult(t *testing.T) {
	e := newEnv(t)
	e.ledger.publishRes = ledger.PublishResult{Err: ledger.ReasonDuplicate, Remaining: 41}

	w := doJSON(t, e.router, http.MethodPost, "/post", PostRequest{Text: "hello", Method: "api"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", w.Code)
	}
	resp := decode[PostResponse](t, w)
	if resp.Success || resp.Error != ledger.ReasonDuplicate {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestPost_ManualRecordsWithoutPublishing(t *testing.T) {
	e := newEnv(t)

	w := doJSON(t, e.router, http.MethodPost, "/post", PostRequest{Text: "posted by hand", Method: "manual"})
	resp := decode[PostResponse](t, w)
	if !resp.Success || resp.Remaining != 42 {
		t.Fatalf("resp = %+v", resp)
	}
	if e.ledger.publishCalls != 0 {
		t.Fatalf("publish calls = %d; want 0", e.ledger.publishCalls)
	}
	if len(e.ledger.recorded) != 1 || e.ledger.recorded[0].Method != domain.MethodManual {
		t.Fatalf("recorded = %+v", e.ledger.recorded)
	}
}

func TestPost_Validation(t *testing.T) {
	e := newEnv(t)

	if w := doJSON(t, e.router, http.MethodPost, "/post", PostRequest{Text: "  "}); w.Code != http.StatusBadRequest {
		t.Fatalf("empty text status = %d; want 400", w.Code)
	}
	if w := doJSON(t, e.router, http.MethodPost, "/post", PostRequest{Text: "x", Method: "carrier-pigeon"}); w.Code != http.StatusBadRequest {
		t.Fatalf("bad method status = %d; want 400", w.Code)
	}
}

func TestRecord_AttachesPlatformID(t *testing.T) {
	e := newEnv(t)

	w := doJSON(t, e.router, http.MethodPost, "/record", RecordRequest{Text: "hand posted", PlatformID: "999"})
	resp := decode[RecordResponse](t, w)
	if resp.Method != "manual" || resp.PlatformID != "999" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestRecord_EmptyTextRejected(t *testing.T) {
	e := newEnv(t)
	if w := doJSON(t, e.router, http.MethodPost, "/record", RecordRequest{Text: "   "}); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", w.Code)
	}
}

func TestQuotaAndConfig(t *testing.T) {
	e := newEnv(t)

	q := decode[QuotaResponse](t, doJSON(t, e.router, http.MethodGet, "/quota", nil))
	if q.RemainingWrites != 42 || q.MonthlyLimit != 280 {
		t.Fatalf("quota = %+v", q)
	}

	cfg := decode[ConfigResponse](t, doJSON(t, e.router, http.MethodGet, "/config", nil))
	if cfg.RemainingWrites != 42 || cfg.CommunityURL != "https://x.com/i/communities/1" {
		t.Fatalf("config = %+v", cfg)
	}
}

func TestUsageEndpoint(t *testing.T) {
	e := newEnv(t)
	st := decode[usage.Status](t, doJSON(t, e.router, http.MethodGet, "/usage", nil))
	if st.Plan != "free" || st.Remaining != 2 {
		t.Fatalf("status = %+v", st)
	}
}

func TestEmail(t *testing.T) {
	e := newEnv(t)

	w := doJSON(t, e.router, http.MethodPost, "/email", EmailRequest{Subject: "Options", Options: []string{"a", "b"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if e.mailer.subject != "Options" || len(e.mailer.options) != 2 {
		t.Fatalf("mailer got %q %v", e.mailer.subject, e.mailer.options)
	}

	if w := doJSON(t, e.router, http.MethodPost, "/email", EmailRequest{Subject: "s"}); w.Code != http.StatusBadRequest {
		t.Fatalf("no options status = %d; want 400", w.Code)
	}

	e.mailer.err = notify.ErrNotConfigured
	w = doJSON(t, e.router, http.MethodPost, "/email", EmailRequest{Subject: "s", Options: []string{"a"}})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("unconfigured status = %d; want 500", w.Code)
	}
	if got := decode[ErrorResponse](t, w); got.Code != ErrCodeEmailFailed {
		t.Fatalf("code = %q", got.Code)
	}
}
