// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database connection, upload storage,
// Telegram integration, rate limiting, and observability.
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-classifieds-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// TelegramConfig groups the Telegram bot integration settings.
//
// AdminIDs is the full administrator allow-list: TELEGRAM_ADMIN_ID plus
// every entry of the comma-separated TELEGRAM_ADMIN_IDS. AdminID is the
// primary admin, the recipient of bot notifications.
type TelegramConfig struct {
	BotToken        string  // TELEGRAM_BOT_TOKEN (empty disables bot features)
	AdminID         int64   // TELEGRAM_ADMIN_ID (primary admin, notification target)
	AdminIDs        []int64 // TELEGRAM_ADMIN_IDS (comma-separated, merged with AdminID)
	RequiredChannel string  // REQUIRED_CHANNEL (e.g. "@CubaClasificados")
}

// UploadConfig defines photo upload storage limits and location.
type UploadConfig struct {
	Dir           string // UPLOAD_DIR: filesystem root for stored photos
	MaxFileBytes  int64  // UPLOAD_MAX_FILE_BYTES: per-file size cap
	MaxPerRequest int    // UPLOAD_MAX_PER_REQUEST: photos per create/update
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

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// Database. DatabaseURL is a Postgres DSN; when empty, the server
	// falls back to a local SQLite file at SQLitePath (dev convenience).
	DatabaseURL string
	SQLitePath  string

	// Listings
	ActiveListingCap int // max simultaneously active listings per owner
	TitleMaxLen      int // max title length in runes

	// Uploads
	Upload UploadConfig

	// Telegram
	Telegram TelegramConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

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
		Port:              getenv("PORT", "3000"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api")),

		// Database
		DatabaseURL: getenv("DATABASE_URL", ""),
		SQLitePath:  getenv("SQLITE_PATH", "app.db"),

		// Listings
		ActiveListingCap: getint("ACTIVE_LISTING_CAP", 10),
		TitleMaxLen:      getint("TITLE_MAX_LEN", 100),

		// Uploads
		Upload: UploadConfig{
			Dir:           getenv("UPLOAD_DIR", "./uploads"),
			MaxFileBytes:  int64(getint("UPLOAD_MAX_FILE_BYTES", 5<<20)),
			MaxPerRequest: getint("UPLOAD_MAX_PER_REQUEST", 5),
		},

		// Telegram
		Telegram: TelegramConfig{
			BotToken:        getenv("TELEGRAM_BOT_TOKEN", ""),
			AdminID:         getint64("TELEGRAM_ADMIN_ID", 0),
			AdminIDs:        splitIDs(getenv("TELEGRAM_ADMIN_IDS", "")),
			RequiredChannel: getenv("REQUIRED_CHANNEL", "@CubaClasificados"),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-classifieds-backend"),
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
	// The primary admin is always part of the allow-list.
	if cfg.Telegram.AdminID != 0 && !containsID(cfg.Telegram.AdminIDs, cfg.Telegram.AdminID) {
		cfg.Telegram.AdminIDs = append([]int64{cfg.Telegram.AdminID}, cfg.Telegram.AdminIDs...)
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
	if cfg.DatabaseURL == "" && strings.TrimSpace(cfg.SQLitePath) == "" {
		return cfg, errors.New("either DATABASE_URL or SQLITE_PATH must be set")
	}
	if cfg.ActiveListingCap < 1 {
		return cfg, errors.New("ACTIVE_LISTING_CAP must be >= 1")
	}
	if cfg.TitleMaxLen < 1 {
		return cfg, errors.New("TITLE_MAX_LEN must be >= 1")
	}
	if strings.TrimSpace(cfg.Upload.Dir) == "" {
		return cfg, errors.New("UPLOAD_DIR must not be empty")
	}
	if cfg.Upload.MaxFileBytes <= 0 {
		return cfg, errors.New("UPLOAD_MAX_FILE_BYTES must be > 0")
	}
	if cfg.Upload.MaxPerRequest < 1 {
		return cfg, errors.New("UPLOAD_MAX_PER_REQUEST must be >= 1")
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

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
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

// splitIDs parses a comma-separated list of numeric Telegram ids,
// silently skipping entries that do not parse.
func splitIDs(s string) []int64 {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t == "" {
			continue
		}
		if id, err := strconv.ParseInt(t, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
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
