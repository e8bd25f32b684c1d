package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/credentials"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/ratelimit"
)

// Counter store backends.
const (
	CounterStoreRedis  = "redis"
	CounterStoreMemory = "memory"
)

type Config struct {
	SigningSecret string        // Required: HS256 secret, at least 32 bytes
	Issuer        string        // Optional: issuer claim for tokens (default: gatekeeper)
	Audience      []string      // Optional: audience claim, comma separated (default: gatekeeper-dashboard)
	TokenTTL      time.Duration // Optional: access token lifetime (default: 1h)
	TokenLeeway   time.Duration // Optional: clock skew allowed on exp (default: 0)
	Users         string        // Optional: seed users as user:password:role,... (default: demo users)

	DatabaseFile   string        // Optional: path to SQLite audit database (default: ./auth.db)
	AuditRetention time.Duration // Optional: keep audit rows this long past expiry (default: 720h)

	RateLimitStore string        // Optional: counter store backend, redis or memory (default: redis)
	RedisURL       string        // Optional: redis connection URL (default: redis://localhost:6379/0)
	RateLimitRules string        // Optional: "METHOD PATH LIMIT/WINDOW, ..." (default: built-in rules)
	FailMode       string        // Required: open or closed, behaviour when the counter store is down
	StoreTimeout   time.Duration // Optional: bound on one counter store call (default: 250ms)
	KeyPrefix      string        // Optional: counter key prefix (default: rl)
	TrustProxy     bool          // Optional: honour X-Forwarded-For / X-Real-IP (default: false)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

// LoadConfig reads the configuration from the environment. A .env file in
// the working directory is loaded first if present; real environment
// variables win over it.
func LoadConfig() Config {
	_ = godotenv.Load()

	return Config{
		SigningSecret: os.Getenv("AUTH_SIGNING_SECRET"),
		Issuer:        getEnvOrDefault("AUTH_ISSUER", "gatekeeper"),
		Audience:      splitList(getEnvOrDefault("AUTH_AUDIENCE", "gatekeeper-dashboard")),
		TokenTTL:      getEnvDurationOrDefault("AUTH_TOKEN_TTL", jwtx.DefaultAccessTokenTTL),
		TokenLeeway:   getEnvDurationOrDefault("AUTH_TOKEN_LEEWAY", 0),
		Users:         getEnvOrDefault("AUTH_USERS", credentials.DefaultSeed),

		DatabaseFile:   getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		AuditRetention: getEnvDurationOrDefault("AUTH_AUDIT_RETENTION", 30*24*time.Hour),

		RateLimitStore: getEnvOrDefault("RATELIMIT_STORE", CounterStoreRedis),
		RedisURL:       getEnvOrDefault("RATELIMIT_REDIS_URL", "redis://localhost:6379/0"),
		RateLimitRules: os.Getenv("RATELIMIT_RULES"),
		FailMode:       os.Getenv("RATELIMIT_FAIL_MODE"),
		StoreTimeout:   getEnvDurationOrDefault("RATELIMIT_STORE_TIMEOUT", ratelimit.DefaultStoreTimeout),
		KeyPrefix:      getEnvOrDefault("RATELIMIT_KEY_PREFIX", "rl"),
		TrustProxy:     getEnvBoolOrDefault("RATELIMIT_TRUST_PROXY", false),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var errs []error

	if len(c.SigningSecret) < jwtx.MinSecretBytes {
		errs = append(errs, fmt.Errorf("AUTH_SIGNING_SECRET must be at least %d bytes", jwtx.MinSecretBytes))
	}
	if strings.TrimSpace(c.Issuer) == "" {
		errs = append(errs, errors.New("AUTH_ISSUER must not be empty"))
	}
	if len(c.Audience) == 0 {
		errs = append(errs, errors.New("AUTH_AUDIENCE must not be empty"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("AUTH_TOKEN_TTL must be positive"))
	}
	if c.TokenLeeway < 0 {
		errs = append(errs, errors.New("AUTH_TOKEN_LEEWAY must not be negative"))
	}
	if err := credentials.ValidateSeed(c.Users); err != nil {
		errs = append(errs, fmt.Errorf("AUTH_USERS: %w", err))
	}

	switch c.RateLimitStore {
	case CounterStoreRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("RATELIMIT_REDIS_URL must be set for the redis store"))
		}
	case CounterStoreMemory:
	default:
		errs = append(errs, fmt.Errorf("RATELIMIT_STORE must be %q or %q, got %q",
			CounterStoreRedis, CounterStoreMemory, c.RateLimitStore))
	}
	if _, err := c.rules(); err != nil {
		errs = append(errs, fmt.Errorf("RATELIMIT_RULES: %w", err))
	}
	if _, err := ratelimit.ParseFailMode(c.FailMode); err != nil {
		errs = append(errs, fmt.Errorf("RATELIMIT_FAIL_MODE must be open or closed: %w", err))
	}

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}

	return errors.Join(errs...)
}

func (c Config) rules() (ratelimit.Rules, error) {
	if strings.TrimSpace(c.RateLimitRules) == "" {
		return ratelimit.DefaultRules(), nil
	}
	return ratelimit.ParseRules(c.RateLimitRules)
}

func (c Config) failMode() ratelimit.FailMode {
	mode, _ := ratelimit.ParseFailMode(c.FailMode)
	return mode
}

func (c Config) credentialStore() (*credentials.Store, error) {
	creds, err := credentials.ParseSeed(c.Users)
	if err != nil {
		return nil, err
	}
	return credentials.NewStore(creds...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

// splitList splits a comma separated value, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
