package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends for the credential bundle.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config aggregates runtime configuration for the dashboard server.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Session  SessionConfig
	Backend  BackendConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig covers the scope cookie and token sealing.
type AuthConfig struct {
	ScopeSecret     string
	ScopeTTL        time.Duration
	ScopeCookieName string
	CookieSecure    bool
	SealSecret      string
}

// SessionConfig drives the session gate.
type SessionConfig struct {
	Store            string
	EarlyRefreshSkew time.Duration
	LoginGatePolicy  string
	LoginPath        string
	DashboardPath    string
}

// BackendConfig points at the portfolio REST backend.
type BackendConfig struct {
	BaseURL        string
	LoginPath      string
	LogoutPath     string
	TimeoutSeconds int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "portfolio-admin"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        redisDB,
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "portfolio-admin:credentials:"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			ScopeSecret:     getEnv("AUTH_SCOPE_SECRET", "dev-scope-secret"),
			ScopeTTL:        getEnvAsDuration("AUTH_SCOPE_TTL", 30*24*time.Hour),
			ScopeCookieName: getEnv("AUTH_SCOPE_COOKIE", "admin_scope"),
			CookieSecure:    getEnvAsBool("AUTH_COOKIE_SECURE", false),
			SealSecret:      getEnv("AUTH_SEAL_SECRET", "dev-seal-secret"),
		},
		Session: SessionConfig{
			Store:            strings.ToLower(getEnv("SESSION_STORE", StoreMemory)),
			EarlyRefreshSkew: getEnvAsDuration("SESSION_EARLY_REFRESH_WINDOW", 5*time.Minute),
			LoginGatePolicy:  strings.ToLower(getEnv("SESSION_LOGIN_GATE_POLICY", "strict")),
			LoginPath:        getEnv("SESSION_LOGIN_PATH", "/login"),
			DashboardPath:    getEnv("SESSION_DASHBOARD_PATH", "/dashboard"),
		},
		Backend: BackendConfig{
			BaseURL:        strings.TrimRight(os.Getenv("BACKEND_BASE_URL"), "/"),
			LoginPath:      getEnv("BACKEND_LOGIN_PATH", "/login"),
			LogoutPath:     getEnv("BACKEND_LOGOUT_PATH", "/logout"),
			TimeoutSeconds: getEnvAsInt("BACKEND_TIMEOUT_SECONDS", 15),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Session.Store {
	case StoreMemory, StoreRedis, StorePostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown SESSION_STORE %q", c.Session.Store))
	}
	switch c.Session.LoginGatePolicy {
	case "strict", "early_refresh":
	default:
		errs = append(errs, fmt.Errorf("unknown SESSION_LOGIN_GATE_POLICY %q", c.Session.LoginGatePolicy))
	}
	if c.Session.Store == StorePostgres && c.Postgres.DSN == "" {
		errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres session store"))
	}
	if c.Backend.BaseURL == "" {
		errs = append(errs, errors.New("BACKEND_BASE_URL is required"))
	}
	if c.Session.EarlyRefreshSkew < 0 {
		errs = append(errs, errors.New("SESSION_EARLY_REFRESH_WINDOW must not be negative"))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the outbound request timeout.
func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(b.TimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
