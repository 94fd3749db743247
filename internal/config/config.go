package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Vault modes reported at startup and on /health
const (
	VaultModePassthrough = "passthrough"
	VaultModeAESGCM      = "aes-gcm"
)

// Config holds all configuration for the application
type Config struct {
	// Database
	DatabaseURL string

	// Server
	APIPort       int
	PublicBaseURL string

	// Storage
	AttachmentStoragePath string

	// Logging
	LogLevel string

	// Security
	APIKey         string
	AllowedOrigins string
	AppEnv         string

	// Rate Limiting
	RateLimitRequests float64
	RateLimitBurst    int

	// Credential vault: base64 of a 32 byte key, empty means passthrough
	EncryptionKey string

	// Tracking
	TrackingSecret  string
	SafeRedirectURL string

	// Sync and task queue
	SyncInterval   time.Duration
	SyncLimit      int
	WorkerCount    int
	QueueSize      int
	SendMaxRetries int
	SendRetryDelay time.Duration

	// Default push endpoint for generic accounts connected without a host
	DefaultSMTPHost string
	DefaultSMTPPort int

	// External classifier
	AIEmailSortingEnabled bool
	OpenAIAPIKey          string
	OpenAIModel           string
	OpenAIBaseURL         string

	// Gmail OAuth
	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURL  string

	// Inbound SMTP relay for forwarded copies; empty address disables it
	RelayAddr           string
	RelayDomain         string
	RelaySecret         string
	RelayMaxMessageSize int64
	RelayTLSCert        string
	RelayTLSKey         string

	// Directory fallback
	DefaultCompanyName string
}

// Load reads configuration from environment variables, after an optional .env file
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{}
	var err error

	// Required: DATABASE_URL
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set")
	}

	if cfg.APIPort, err = envInt("API_PORT", 8080); err != nil {
		return nil, err
	}
	cfg.PublicBaseURL = strings.TrimRight(envString("PUBLIC_BASE_URL", fmt.Sprintf("http://localhost:%d", cfg.APIPort)), "/")

	cfg.AttachmentStoragePath = envString("ATTACHMENT_STORAGE_PATH", "./attachments")
	cfg.LogLevel = envString("LOG_LEVEL", "info")

	// Security configuration
	cfg.APIKey = os.Getenv("API_KEY")
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")
	cfg.AppEnv = envString("APP_ENV", "development")

	// Rate limiting configuration; malformed values fall back to defaults
	cfg.RateLimitRequests = 10.0
	if rps := os.Getenv("RATE_LIMIT_REQUESTS"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil {
			cfg.RateLimitRequests = v
		}
	}
	cfg.RateLimitBurst = 20
	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		if v, err := strconv.Atoi(burst); err == nil {
			cfg.RateLimitBurst = v
		}
	}

	cfg.EncryptionKey = os.Getenv("EMAIL_ENCRYPTION_KEY")
	cfg.TrackingSecret = os.Getenv("TRACKING_SECRET")
	cfg.SafeRedirectURL = envString("SAFE_REDIRECT_URL", cfg.PublicBaseURL+"/")

	if cfg.SyncInterval, err = envDuration("SYNC_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SyncLimit, err = envInt("SYNC_LIMIT", 20); err != nil {
		return nil, err
	}
	if cfg.WorkerCount, err = envInt("WORKER_COUNT", 4); err != nil {
		return nil, err
	}
	if cfg.QueueSize, err = envInt("QUEUE_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.SendMaxRetries, err = envInt("SEND_MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.SendRetryDelay, err = envDuration("SEND_RETRY_DELAY", 10*time.Second); err != nil {
		return nil, err
	}

	cfg.DefaultSMTPHost = os.Getenv("DEFAULT_SMTP_HOST")
	if cfg.DefaultSMTPPort, err = envInt("DEFAULT_SMTP_PORT", 587); err != nil {
		return nil, err
	}

	if cfg.AIEmailSortingEnabled, err = envBool("AI_EMAIL_SORTING_ENABLED", false); err != nil {
		return nil, err
	}
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIModel = envString("OPENAI_MODEL", "gpt-4o-mini")
	cfg.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")

	cfg.GmailClientID = os.Getenv("GMAIL_CLIENT_ID")
	cfg.GmailClientSecret = os.Getenv("GMAIL_CLIENT_SECRET")
	cfg.GmailRedirectURL = os.Getenv("GMAIL_REDIRECT_URL")

	cfg.RelayAddr = os.Getenv("SMTP_RELAY_ADDR")
	cfg.RelayDomain = envString("SMTP_RELAY_DOMAIN", "localhost")
	cfg.RelaySecret = os.Getenv("SMTP_RELAY_SECRET")
	cfg.RelayTLSCert = os.Getenv("SMTP_RELAY_TLS_CERT")
	cfg.RelayTLSKey = os.Getenv("SMTP_RELAY_TLS_KEY")
	if size := os.Getenv("SMTP_RELAY_MAX_MESSAGE_SIZE"); size != "" {
		if cfg.RelayMaxMessageSize, err = strconv.ParseInt(size, 10, 64); err != nil {
			return nil, fmt.Errorf("SMTP_RELAY_MAX_MESSAGE_SIZE must be a valid integer: %w", err)
		}
	}

	cfg.DefaultCompanyName = envString("DEFAULT_COMPANY_NAME", "Our Company")

	return cfg, nil
}

// LoadWithValidation loads and validates configuration, failing fast on errors
func LoadWithValidation() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.IsProduction() {
		if err := cfg.ValidateProduction(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// IsProduction reports whether APP_ENV is production
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// VaultMode reports whether stored secrets are encrypted or passed through
func (c *Config) VaultMode() string {
	if c.EncryptionKey == "" {
		return VaultModePassthrough
	}
	return VaultModeAESGCM
}

// GmailEnabled reports whether Gmail OAuth credentials are configured
func (c *Config) GmailEnabled() bool {
	return c.GmailClientID != "" && c.GmailClientSecret != ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DatabaseURL cannot be empty")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("APIPort must be between 1 and 65535")
	}
	if c.AttachmentStoragePath == "" {
		return fmt.Errorf("AttachmentStoragePath cannot be empty")
	}
	if c.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(c.EncryptionKey)
		if err != nil || len(key) != 32 {
			return fmt.Errorf("EMAIL_ENCRYPTION_KEY must be base64 of exactly 32 bytes")
		}
	}
	if u, err := url.Parse(c.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("PUBLIC_BASE_URL must be an absolute URL")
	}
	if c.SyncLimit <= 0 {
		return fmt.Errorf("SYNC_LIMIT must be positive")
	}
	if c.SyncInterval < time.Second {
		return fmt.Errorf("SYNC_INTERVAL must be at least 1s")
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("WORKER_COUNT must be positive")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("QUEUE_SIZE must be positive")
	}
	if c.SendMaxRetries < 0 {
		return fmt.Errorf("SEND_MAX_RETRIES cannot be negative")
	}
	if (c.RelayTLSCert == "") != (c.RelayTLSKey == "") {
		return fmt.Errorf("SMTP_RELAY_TLS_CERT and SMTP_RELAY_TLS_KEY must be set together")
	}
	return nil
}

// ValidateProduction performs additional validation for production environment
func (c *Config) ValidateProduction() error {
	if c.APIKey == "" {
		return fmt.Errorf("API_KEY is required in production")
	}

	if c.AllowedOrigins == "" {
		return fmt.Errorf("ALLOWED_ORIGINS is required in production")
	}

	if strings.Contains(c.AllowedOrigins, "*") {
		return fmt.Errorf("wildcard (*) origins are not allowed in production")
	}

	if strings.Contains(c.DatabaseURL, "sslmode=disable") {
		return fmt.Errorf("sslmode=disable is not allowed in production")
	}

	// passthrough storage of mailbox secrets is a development mode only
	if c.EncryptionKey == "" {
		return fmt.Errorf("EMAIL_ENCRYPTION_KEY is required in production")
	}

	if c.TrackingSecret == "" {
		return fmt.Errorf("TRACKING_SECRET is required in production")
	}

	if c.RelayAddr != "" && c.RelaySecret == "" {
		return fmt.Errorf("SMTP_RELAY_SECRET is required in production when the relay is enabled")
	}

	return nil
}

// LogConfig logs configuration values (excluding secrets)
func (c *Config) LogConfig(logger *slog.Logger) {
	logger.Info("configuration loaded",
		slog.Int("api_port", c.APIPort),
		slog.String("public_base_url", c.PublicBaseURL),
		slog.String("storage_path", c.AttachmentStoragePath),
		slog.String("log_level", c.LogLevel),
		slog.String("app_env", c.AppEnv),
		slog.Bool("api_key_set", c.APIKey != ""),
		slog.Bool("allowed_origins_set", c.AllowedOrigins != ""),
		slog.Float64("rate_limit_rps", c.RateLimitRequests),
		slog.Int("rate_limit_burst", c.RateLimitBurst),
		slog.String("vault_mode", c.VaultMode()),
		slog.Bool("tracking_secret_set", c.TrackingSecret != ""),
		slog.Duration("sync_interval", c.SyncInterval),
		slog.Int("sync_limit", c.SyncLimit),
		slog.Int("worker_count", c.WorkerCount),
		slog.Int("send_max_retries", c.SendMaxRetries),
		slog.Duration("send_retry_delay", c.SendRetryDelay),
		slog.Bool("ai_sorting_enabled", c.AIEmailSortingEnabled),
		slog.Bool("openai_key_set", c.OpenAIAPIKey != ""),
		slog.Bool("gmail_oauth_set", c.GmailEnabled()),
		slog.String("smtp_relay_addr", c.RelayAddr),
		slog.Bool("smtp_relay_secret_set", c.RelaySecret != ""),
	)
	if c.VaultMode() == VaultModePassthrough {
		logger.Warn("EMAIL_ENCRYPTION_KEY not set: mailbox secrets are stored unencrypted")
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a valid boolean: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	return d, nil
}
