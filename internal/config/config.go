// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, storage, realtime delivery, SMS relay, session and observability
// settings for the SMS bridge.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/smsbridge-chat/internal/sysutil"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "smsbridge-chat")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects the storage driver.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file path
	URL    string // Postgres DSN
}

// RealtimeConfig tunes the change notifier strategies.
type RealtimeConfig struct {
	StreamEnabled     bool          // REALTIME_STREAM_ENABLED
	HeartbeatInterval time.Duration // STREAM_HEARTBEAT
	QueueSize         int           // STREAM_QUEUE, per-channel buffered events
	PollInterval      time.Duration // POLL_INTERVAL, advertised to polling clients
	PresenceFreshness time.Duration // PRESENCE_FRESHNESS
}

// SMSConfig holds gateway credentials and duplicate-send suppression windows.
type SMSConfig struct {
	APIURL     string
	APIKey     string
	SenderID   string
	Timeout    time.Duration
	WebsiteURL string

	DedupeWindow    time.Duration // same destination + content
	IdenticalWindow time.Duration // same admin session + content
	Cooldown        time.Duration // any SMS per admin session
	Retention       time.Duration // prune horizon for suppression entries

	RedisURL string // optional shared suppression store
}

// SessionConfig controls token-based sessions.
type SessionConfig struct {
	AdminPhone string
	JWTSecret  string
	TTL        time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DB DBConfig

	// Chat
	Session  SessionConfig
	Realtime RealtimeConfig
	SMS      SMSConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

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
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "smsbridge.db"),
			URL:    getenv("DATABASE_URL", ""),
		},

		Session: SessionConfig{
			AdminPhone: strings.TrimSpace(getenv("ADMIN_PHONE", "")),
			JWTSecret:  getenv("JWT_SECRET", ""),
			TTL:        getdur("SESSION_TTL", 7*24*time.Hour),
		},

		Realtime: RealtimeConfig{
			StreamEnabled:     getbool("REALTIME_STREAM_ENABLED", true),
			HeartbeatInterval: getdur("STREAM_HEARTBEAT", 30*time.Second),
			QueueSize:         getint("STREAM_QUEUE", 64),
			PollInterval:      getdur("POLL_INTERVAL", time.Second),
			PresenceFreshness: getdur("PRESENCE_FRESHNESS", 15*time.Second),
		},

		SMS: SMSConfig{
			APIURL:          getenv("SMS_API_URL", "https://api.mista.io/sms"),
			APIKey:          getenv("SMS_API_KEY", ""),
			SenderID:        getenv("SMS_SENDER_ID", "LuxuryChat"),
			Timeout:         getdur("SMS_TIMEOUT", 10*time.Second),
			WebsiteURL:      getenv("WEBSITE_URL", "http://localhost:8080"),
			DedupeWindow:    getdur("SMS_DEDUPE_WINDOW", 30*time.Second),
			IdenticalWindow: getdur("SMS_IDENTICAL_WINDOW", 10*time.Second),
			Cooldown:        getdur("SMS_COOLDOWN", 3*time.Second),
			Retention:       getdur("SMS_SUPPRESSION_RETENTION", 5*time.Minute),
			RedisURL:        getenv("REDIS_URL", ""),
		},

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "smsbridge-chat"),
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
	if cfg.DB.Driver == "postgresql" || cfg.DB.Driver == "pg" {
		cfg.DB.Driver = "postgres"
	}
	cfg.SMS.WebsiteURL = strings.TrimRight(cfg.SMS.WebsiteURL, "/")

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
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.Session.AdminPhone == "" {
		return cfg, errors.New("ADMIN_PHONE must not be empty")
	}
	if strings.TrimSpace(cfg.Session.JWTSecret) == "" {
		return cfg, errors.New("JWT_SECRET must not be empty")
	}
	if cfg.Session.TTL <= 0 {
		return cfg, errors.New("SESSION_TTL must be > 0")
	}
	if cfg.Realtime.HeartbeatInterval <= 0 || cfg.Realtime.PollInterval <= 0 || cfg.Realtime.PresenceFreshness <= 0 {
		return cfg, errors.New("STREAM_HEARTBEAT, POLL_INTERVAL and PRESENCE_FRESHNESS must be > 0")
	}
	if cfg.Realtime.QueueSize < 2 {
		return cfg, errors.New("STREAM_QUEUE must be >= 2")
	}
	if cfg.SMS.Timeout <= 0 {
		return cfg, errors.New("SMS_TIMEOUT must be > 0")
	}
	if cfg.SMS.DedupeWindow < 0 || cfg.SMS.IdenticalWindow < 0 || cfg.SMS.Cooldown < 0 {
		return cfg, errors.New("SMS suppression windows must be >= 0")
	}
	if cfg.SMS.Retention < cfg.SMS.DedupeWindow || cfg.SMS.Retention < cfg.SMS.IdenticalWindow {
		return cfg, errors.New("SMS_SUPPRESSION_RETENTION must cover every suppression window")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

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
		if b, ok := sysutil.ParseBool(v); ok {
			return b
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
