// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server settings,
// logging, generation and publication limits, external service credentials,
// rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-banger-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// GenerationConfig groups settings for the content-generation pipeline.
type GenerationConfig struct {
	APIKey          string        // GOOGLE_API_KEY
	Model           string        // MODEL_NAME
	APIBase         string        // GEMINI_API_BASE (override for tests/proxies)
	Timeout         time.Duration // per provider call
	TargetOptions   int           // concurrent fan-out width and target count
	BackfillTries   int           // serial single-shot retries after fan-out
	CacheTTL        time.Duration // result cache entry lifetime
	StyleProfile    string        // path to style_profile.json (optional)
	TrainingPosts   string        // path to training_posts.json (optional)
	FreeDailyLimit  int           // free-tier generations per day
}

// LedgerConfig groups settings for the post ledger and publication gates.
type LedgerConfig struct {
	Path            string        // local JSON fallback store
	MonthlyLimit    int           // MAX_X_WRITES_PER_MONTH
	DuplicateWindow time.Duration // duplicate-guard window
	MaxPostChars    int           // platform length limit
	CommunityURL    string        // X_COMMUNITY_URL (manual posting target)
}

// PlatformConfig holds social-posting platform credentials.
type PlatformConfig struct {
	APIBase     string // X_API_BASE (override for tests)
	AccessToken string // X_ACCESS_TOKEN (OAuth2 user context)
}

// RemoteConfig holds durable remote store and identity settings.
type RemoteConfig struct {
	URL        string // SUPABASE_URL
	ServiceKey string // SUPABASE_SERVICE_ROLE_KEY
	AnonKey    string // SUPABASE_ANON_KEY
}

// EmailConfig holds outbound notification settings.
type EmailConfig struct {
	APIKey   string // RESEND_API_KEY
	FromAddr string // FROM_USER
	ToAddr   string // TO_EMAIL (default recipient)
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 30s (generation fan-out included)
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Routing
	APIBasePath string // base path for API routes

	// App
	DBPath string // SQLite path (usage records)

	// Domain
	Generation GenerationConfig
	Ledger     LedgerConfig
	Platform   PlatformConfig
	Remote     RemoteConfig
	Email      EmailConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS CORSConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// Routing
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath: getenv("DB_PATH", "app.db"),

		// Domain
		Generation: GenerationConfig{
			APIKey:         getenv("GOOGLE_API_KEY", ""),
			Model:          getenv("MODEL_NAME", "gemini-1.5-flash"),
			APIBase:        getenv("GEMINI_API_BASE", "https://generativelanguage.googleapis.com"),
			Timeout:        getdur("GENERATION_TIMEOUT", 25*time.Second),
			TargetOptions:  getint("GENERATION_TARGET", 3),
			BackfillTries:  getint("GENERATION_BACKFILL_TRIES", 2),
			CacheTTL:       getdur("GENERATION_CACHE_TTL", 120*time.Second),
			StyleProfile:   getenv("STYLE_PROFILE_PATH", "config/style_profile.json"),
			TrainingPosts:  getenv("TRAINING_POSTS_PATH", "config/training_posts.json"),
			FreeDailyLimit: getint("FREE_DAILY_LIMIT", 3),
		},
		Ledger: LedgerConfig{
			Path:            getenv("LEDGER_PATH", "data/post_ledger.json"),
			MonthlyLimit:    getint("MAX_X_WRITES_PER_MONTH", 280),
			DuplicateWindow: getdur("DUPLICATE_WINDOW", 48*time.Hour),
			MaxPostChars:    getint("MAX_POST_CHARS", 280),
			CommunityURL:    getenv("X_COMMUNITY_URL", ""),
		},
		Platform: PlatformConfig{
			APIBase:     getenv("X_API_BASE", "https://api.x.com"),
			AccessToken: getenv("X_ACCESS_TOKEN", ""),
		},
		Remote: RemoteConfig{
			URL:        strings.TrimRight(getenv("SUPABASE_URL", ""), "/"),
			ServiceKey: getenv("SUPABASE_SERVICE_ROLE_KEY", ""),
			AnonKey:    getenv("SUPABASE_ANON_KEY", ""),
		},
		Email: EmailConfig{
			APIKey:   getenv("RESEND_API_KEY", ""),
			FromAddr: getenv("FROM_USER", ""),
			ToAddr:   getenv("TO_EMAIL", ""),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-banger-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.Ledger.Path) == "" {
		return cfg, errors.New("LEDGER_PATH must not be empty")
	}
	if cfg.Generation.Timeout <= 0 {
		return cfg, errors.New("GENERATION_TIMEOUT must be > 0")
	}
	if cfg.Generation.TargetOptions < 1 {
		return cfg, errors.New("GENERATION_TARGET must be >= 1")
	}
	if cfg.Generation.BackfillTries < 0 {
		return cfg, errors.New("GENERATION_BACKFILL_TRIES must be >= 0")
	}
	if cfg.Generation.CacheTTL <= 0 {
		return cfg, errors.New("GENERATION_CACHE_TTL must be > 0")
	}
	if cfg.Generation.FreeDailyLimit < 1 {
		return cfg, errors.New("FREE_DAILY_LIMIT must be >= 1")
	}
	if cfg.Ledger.MonthlyLimit < 0 {
		return cfg, errors.New("MAX_X_WRITES_PER_MONTH must be >= 0")
	}
	if cfg.Ledger.DuplicateWindow <= 0 {
		return cfg, errors.New("DUPLICATE_WINDOW must be > 0")
	}
	if cfg.Ledger.MaxPostChars < 1 {
		return cfg, errors.New("MAX_POST_CHARS must be >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
