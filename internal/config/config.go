package config

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration values loaded from environment variables.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Agents   AgentsConfig
	Chat     ChatConfig
	Mail     MailConfig
	Sentry   SentryConfig
}

type AppConfig struct {
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile  string `envconfig:"LOG_FILE"`
	HTTPPort string `envconfig:"HTTP_PORT" default:"8080"`
}

type DatabaseConfig struct {
	URL         string `envconfig:"DATABASE_URL" required:"true"`
	MaxConns    int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	AutoMigrate bool   `envconfig:"DB_AUTO_MIGRATE" default:"false"`
	// StateEncryptionKey is a hex-encoded AES key. When set, agent state blobs
	// are encrypted at rest.
	StateEncryptionKey string `envconfig:"STATE_ENCRYPTION_KEY"`
}

type RedisConfig struct {
	URL     string        `envconfig:"REDIS_URL"`
	LockTTL time.Duration `envconfig:"SESSION_LOCK_TTL" default:"90s"`
}

type AuthConfig struct {
	JWTSecret       string        `envconfig:"JWT_SECRET" required:"true"`
	TokenExpiration time.Duration `envconfig:"JWT_EXPIRATION" default:"24h"`
	// bcrypt hashes of the shared keys presented by remote agents and admins.
	AgentKeyHash string `envconfig:"AGENT_KEY_HASH"`
	AdminKeyHash string `envconfig:"ADMIN_KEY_HASH"`
}

type AgentsConfig struct {
	URLs               []string      `envconfig:"AGENT_URLS" default:"http://localhost:10002,http://localhost:10003"`
	StockAnalyserName  string        `envconfig:"STOCK_ANALYSER_AGENT" default:"Stock Analyser Agent"`
	DispatchTimeout    time.Duration `envconfig:"AGENT_DISPATCH_TIMEOUT" default:"30s"`
	CardResolveTimeout time.Duration `envconfig:"AGENT_CARD_TIMEOUT" default:"10s"`
}

type ChatConfig struct {
	FreeMessageLimit  int           `envconfig:"FREE_USER_MESSAGE_LIMIT" default:"30"`
	SessionTTL        time.Duration `envconfig:"SESSION_TTL" default:"72h"`
	WhitelistEnforced bool          `envconfig:"WHITELIST_ENFORCED" default:"false"`
	RateLimitRPS      float64       `envconfig:"RATE_LIMIT_RPS" default:"1"`
	RateLimitBurst    int           `envconfig:"RATE_LIMIT_BURST" default:"5"`
	AllowedOrigins    []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
}

type MailConfig struct {
	SMTPHost     string        `envconfig:"SMTP_HOST"`
	SMTPPort     int           `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string        `envconfig:"SMTP_USERNAME"`
	SMTPPassword string        `envconfig:"SMTP_PASSWORD"`
	From         string        `envconfig:"MAIL_FROM" default:"no-reply@finance-a2a.local"`
	SendTimeout  time.Duration `envconfig:"MAIL_SEND_TIMEOUT" default:"10s"`
}

type SentryConfig struct {
	DSN string `envconfig:"SENTRY_DSN"`
}

// LoadConfig loads configuration from environment variables.
// It looks for a .env file first, then checks actual environment variables.
func LoadConfig() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot express.
func (c *Config) Validate() error {
	if c.Chat.FreeMessageLimit < 0 {
		return fmt.Errorf("FREE_USER_MESSAGE_LIMIT must not be negative")
	}
	if c.Agents.DispatchTimeout <= 0 {
		return fmt.Errorf("AGENT_DISPATCH_TIMEOUT must be positive")
	}
	if _, err := c.StateKey(); err != nil {
		return err
	}
	return nil
}

// StateKey decodes the optional state encryption key. A nil key means blobs
// are stored in plain JSON.
func (c *Config) StateKey() ([]byte, error) {
	if c.Database.StateEncryptionKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.Database.StateEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("STATE_ENCRYPTION_KEY is not valid hex: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	default:
		return nil, fmt.Errorf("STATE_ENCRYPTION_KEY must decode to 16, 24 or 32 bytes, got %d", len(key))
	}
}

// MailEnabled reports whether SMTP delivery is configured.
func (c *Config) MailEnabled() bool {
	return c.Mail.SMTPHost != ""
}
