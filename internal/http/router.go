// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, CORS, and
// rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-banger-backend/internal/cache"
	"github.com/tbourn/go-banger-backend/internal/config"
	"github.com/tbourn/go-banger-backend/internal/generate"
	"github.com/tbourn/go-banger-backend/internal/http/handlers"
	"github.com/tbourn/go-banger-backend/internal/http/middleware"
	"github.com/tbourn/go-banger-backend/internal/identity"
	"github.com/tbourn/go-banger-backend/internal/ledger"
	"github.com/tbourn/go-banger-backend/internal/notify"
	"github.com/tbourn/go-banger-backend/internal/provider"
	"github.com/tbourn/go-banger-backend/internal/usage"
)

// userResolverShim adapts identity.Client to the middleware.UserResolver
// interface. This keeps the middleware decoupled from the concrete identity
// package.
type userResolverShim struct {
	client *identity.Client
}

// ResolveUserID proxies identity.Client.Resolve.
func (s userResolverShim) ResolveUserID(ctx context.Context, accessToken string) (string, error) {
	u, err := s.client.Resolve(ctx, accessToken)
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), authentication and
// rate limiting, CORS, health and metrics endpoints, and then mounts the
// versioned public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured request logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Auth (optional bearer token → userID)
//  8. Rate limiter (per user/IP)
//  9. CORS
func RegisterRoutes(r *gin.Engine, db *gorm.DB, led *ledger.Ledger, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Optional bearer auth; failures stay anonymous
	idc := identity.NewClient(cfg.Remote.URL, cfg.Remote.AnonKey, cfg.Remote.ServiceKey, 10*time.Second)
	var resolver middleware.UserResolver
	if idc.Configured() {
		resolver = userResolverShim{client: idc}
	}
	r.Use(middleware.Auth(resolver))

	// 8) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "X-Gen-Time-Ms", "X-Cache-Hit", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "X-Gen-Time-Ms", "X-Cache-Hit", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← clients/db/ledger
	gem := provider.NewGemini(cfg.Generation.APIBase, cfg.Generation.APIKey, cfg.Generation.Model, cfg.Generation.Timeout)
	orch := &generate.Orchestrator{
		Provider: gem,
		Prompts: &generate.PromptBuilder{
			StyleProfilePath:  cfg.Generation.StyleProfile,
			TrainingPostsPath: cfg.Generation.TrainingPosts,
		},
		TargetOptions: cfg.Generation.TargetOptions,
		BackfillTries: cfg.Generation.BackfillTries,
	}
	results := cache.NewResults(cfg.Generation.CacheTTL)

	var plans usage.PlanSource
	if idc.Configured() {
		plans = idc
	}
	tracker := usage.NewTracker(db, plans, cfg.Generation.FreeDailyLimit)

	mailer := notify.NewMailer(cfg.Email.APIKey, cfg.Email.FromAddr, cfg.Email.ToAddr, 10*time.Second)

	h := handlers.New(orch, results, led, tracker, mailer, cfg.Ledger.MonthlyLimit, cfg.Ledger.CommunityURL)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.POST("/generate", h.Generate)
		api.POST("/post", h.Post)
		api.POST("/record", h.Record)
		api.GET("/quota", h.Quota)
		api.GET("/usage", h.Usage)
		api.GET("/config", h.Config)
		api.POST("/email", h.Email)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
