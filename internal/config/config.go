// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the storefront
type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	OIDC     OIDCConfig
	Backend  BackendConfig
	Storage  StorageConfig
	Session  SessionConfig
	Badge    BadgeConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string
	Version     string
	Environment string
	Debug       bool
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// DatabaseConfig contains database connection configuration
type DatabaseConfig struct {
	Host         string
	Port         string
	Name         string
	User         string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// RedisConfig contains Redis configuration
type RedisConfig struct {
	Host         string
	Port         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// OIDCConfig contains identity provider settings. Endpoint URLs default to
// the Keycloak layout below Authority when left empty.
type OIDCConfig struct {
	Authority     string
	ClientID      string
	RedirectURI   string
	Scopes        []string
	AuthURL       string
	TokenURL      string
	EndSessionURL string
	// SecureOrigin is the canonical origin that can run the PKCE flow.
	// Login requests from any other non-secure origin are forwarded there.
	SecureOrigin string
}

// BackendConfig points at the ecom and inventory REST services
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

// StorageConfig selects where durable per-visitor state lives
type StorageConfig struct {
	// Backend is one of "redis", "postgres" or "memory".
	Backend   string
	KeyPrefix string
}

// SessionConfig contains browsing-context and token lifetime settings
type SessionConfig struct {
	ContextIdleTTL   time.Duration
	MaxContexts      int
	VisitorCookieTTL time.Duration
	RenewBefore      time.Duration
	SecureCookies    bool
}

// BadgeConfig contains cart badge settings
type BadgeConfig struct {
	// PollInterval enables the legacy guest-cart polling when > 0.
	PollInterval time.Duration
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	RateLimitPerMinute int
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	CORSAllowedHeaders []string
	TrustedProxies     []string
	MaxBodyBytes       int64
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	config := FromEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// FromEnv builds a Config from the process environment without loading .env
func FromEnv() *Config {
	return &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Bookstore Storefront"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			Environment: getEnv("APP_ENV", "development"),
			Debug:       getEnvAsBool("APP_DEBUG", true),
		},
		Server: ServerConfig{
			Port:           getEnv("APP_PORT", "30000"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout: getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Name:         getEnv("DB_NAME", "storefront"),
			User:         getEnv("DB_USER", "storefront"),
			Password:     getEnv("DB_PASSWORD", "storefront"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 300*time.Second),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 2),
		},
		OIDC: OIDCConfig{
			Authority:     getEnv("OIDC_AUTHORITY", "http://idp.keycloak.net:30000/realms/bookstore"),
			ClientID:      getEnv("OIDC_CLIENT_ID", "ui-client"),
			RedirectURI:   getEnv("OIDC_REDIRECT_URI", "http://localhost:30000/callback"),
			Scopes:        getEnvAsSlice("OIDC_SCOPES", []string{"openid", "profile", "email", "roles"}),
			AuthURL:       getEnv("OIDC_AUTH_URL", ""),
			TokenURL:      getEnv("OIDC_TOKEN_URL", ""),
			EndSessionURL: getEnv("OIDC_END_SESSION_URL", ""),
			SecureOrigin:  getEnv("OIDC_SECURE_ORIGIN", "http://localhost:30000"),
		},
		Backend: BackendConfig{
			BaseURL: getEnv("BACKEND_BASE_URL", "http://localhost:8080"),
			Timeout: getEnvAsDuration("BACKEND_TIMEOUT", 10*time.Second),
		},
		Storage: StorageConfig{
			Backend:   getEnv("STORAGE_BACKEND", "redis"),
			KeyPrefix: getEnv("STORAGE_KEY_PREFIX", "storefront:local:"),
		},
		Session: SessionConfig{
			ContextIdleTTL:   getEnvAsDuration("SESSION_CONTEXT_IDLE_TTL", 30*time.Minute),
			MaxContexts:      getEnvAsInt("SESSION_MAX_CONTEXTS", 10000),
			VisitorCookieTTL: getEnvAsDuration("SESSION_VISITOR_COOKIE_TTL", 365*24*time.Hour),
			RenewBefore:      getEnvAsDuration("SESSION_RENEW_BEFORE", 60*time.Second),
			SecureCookies:    getEnvAsBool("SESSION_SECURE_COOKIES", false),
		},
		Badge: BadgeConfig{
			PollInterval: getEnvAsDuration("BADGE_POLL_INTERVAL", 0),
		},
		Security: SecurityConfig{
			RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 300),
			CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:30000"}),
			CORSAllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PATCH", "OPTIONS"}),
			CORSAllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept"}),
			TrustedProxies:     getEnvAsSlice("TRUSTED_PROXIES", []string{}),
			MaxBodyBytes:       getEnvAsInt64("MAX_BODY_BYTES", 1<<20),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("APP_PORT is required")
	}

	if c.OIDC.ClientID == "" {
		return fmt.Errorf("OIDC_CLIENT_ID is required")
	}
	if c.OIDC.Authority == "" && (c.OIDC.AuthURL == "" || c.OIDC.TokenURL == "") {
		return fmt.Errorf("OIDC_AUTHORITY or both OIDC_AUTH_URL and OIDC_TOKEN_URL are required")
	}
	if _, err := url.ParseRequestURI(c.OIDC.RedirectURI); err != nil {
		return fmt.Errorf("OIDC_REDIRECT_URI is invalid: %w", err)
	}
	if _, err := url.ParseRequestURI(c.OIDC.SecureOrigin); err != nil {
		return fmt.Errorf("OIDC_SECURE_ORIGIN is invalid: %w", err)
	}

	if c.Backend.BaseURL == "" {
		return fmt.Errorf("BACKEND_BASE_URL is required")
	}

	switch c.Storage.Backend {
	case "redis":
		if c.Redis.Host == "" {
			return fmt.Errorf("REDIS_HOST is required")
		}
	case "postgres":
		if c.Database.Host == "" || c.Database.Name == "" || c.Database.User == "" {
			return fmt.Errorf("DB_HOST, DB_NAME and DB_USER are required")
		}
	case "memory":
	default:
		return fmt.Errorf("STORAGE_BACKEND must be one of redis, postgres, memory (got %q)", c.Storage.Backend)
	}

	if c.Session.ContextIdleTTL <= 0 {
		return fmt.Errorf("SESSION_CONTEXT_IDLE_TTL must be positive")
	}

	return nil
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// AuthURL returns the authorization endpoint
func (c *Config) AuthURL() string {
	if c.OIDC.AuthURL != "" {
		return c.OIDC.AuthURL
	}
	return strings.TrimRight(c.OIDC.Authority, "/") + "/protocol/openid-connect/auth"
}

// TokenURL returns the token endpoint
func (c *Config) TokenURL() string {
	if c.OIDC.TokenURL != "" {
		return c.OIDC.TokenURL
	}
	return strings.TrimRight(c.OIDC.Authority, "/") + "/protocol/openid-connect/token"
}

// EndSessionURL returns the end-session (logout) endpoint
func (c *Config) EndSessionURL() string {
	if c.OIDC.EndSessionURL != "" {
		return c.OIDC.EndSessionURL
	}
	return strings.TrimRight(c.OIDC.Authority, "/") + "/protocol/openid-connect/logout"
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
