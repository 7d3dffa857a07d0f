package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `env:", prefix=SERVER_"`
	Redis     RedisConfig     `env:", prefix=REDIS_"`
	NATS      NATSConfig      `env:", prefix=NATS_"`
	Vendors   VendorsConfig   `env:", prefix=VENDOR_"`
	Stream    StreamConfig    `env:", prefix=STREAM_"`
	Dashboard DashboardConfig `env:", prefix=DASHBOARD_"`
	Security  SecurityConfig  `env:", prefix=SECURITY_"`
	Cache     CacheConfig     `env:", prefix=CACHE_"`
	Logging   LoggingConfig   `env:", prefix=LOG_"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `env:"HOST, default=0.0.0.0"`
	Port         int           `env:"PORT, default=8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT, default=120s"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled      bool          `env:"ENABLED, default=true"`
	Host         string        `env:"HOST, default=localhost"`
	Port         int           `env:"PORT, default=6379"`
	Password     string        `env:"PASSWORD"`
	DB           int           `env:"DB, default=0"`
	PoolSize     int           `env:"POOL_SIZE, default=10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS, default=5"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT, default=5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=3s"`
}

// NATSConfig holds NATS configuration. An empty URL disables NATS and news
// items are delivered to the dashboard hub in-process instead.
type NATSConfig struct {
	URL           string        `env:"URL"`
	MaxReconnect  int           `env:"MAX_RECONNECT, default=10"`
	ReconnectWait time.Duration `env:"RECONNECT_WAIT, default=2s"`
	DrainTimeout  time.Duration `env:"DRAIN_TIMEOUT, default=30s"`
}

// VendorsConfig holds per-vendor base URLs and credentials. Keys come from
// the environment at process start; nothing is compiled in.
type VendorsConfig struct {
	Predictions PredictionsConfig `env:", prefix=PREDICTIONS_"`
	Finance     FinanceConfig     `env:", prefix=FINANCE_"`
	News        NewsConfig        `env:", prefix=NEWS_"`
	TextGen     TextGenConfig     `env:", prefix=TEXTGEN_"`
	Speech      SpeechConfig      `env:", prefix=SPEECH_"`
}

// PredictionsConfig holds the predictions vendor configuration.
// APIKey doubles as the fallback default credential for the slot.
type PredictionsConfig struct {
	BaseURL string        `env:"BASE_URL, default=https://api.predictions.example.com/v1"`
	APIKey  string        `env:"API_KEY"`
	Timeout time.Duration `env:"TIMEOUT, default=15s"`
}

// FinanceConfig holds the finance-data vendor configuration (RapidAPI style)
type FinanceConfig struct {
	BaseURL string        `env:"BASE_URL, default=https://yh-finance.p.rapidapi.com"`
	APIKey  string        `env:"API_KEY"`
	Host    string        `env:"HOST, default=yh-finance.p.rapidapi.com"`
	Timeout time.Duration `env:"TIMEOUT, default=15s"`
}

// NewsConfig holds the brokerage/news vendor configuration
type NewsConfig struct {
	BaseURL   string        `env:"BASE_URL, default=https://data.alpaca.markets"`
	StreamURL string        `env:"STREAM_URL, default=wss://stream.data.alpaca.markets/v1beta1/news"`
	APIKey    string        `env:"API_KEY"`
	APISecret string        `env:"API_SECRET"`
	Timeout   time.Duration `env:"TIMEOUT, default=15s"`
}

// TextGenConfig holds the text-generation vendor configuration
type TextGenConfig struct {
	BaseURL string `env:"BASE_URL, default=https://api.openai.com/v1"`
	APIKey  string `env:"API_KEY"`
	Model   string `env:"MODEL, default=gpt-4o-mini"`
	// MaxInputBytes caps the serialized user payload only because the vendor
	// enforces a request-size limit; 0 disables the cap.
	MaxInputBytes int           `env:"MAX_INPUT_BYTES, default=131072"`
	Timeout       time.Duration `env:"TIMEOUT, default=60s"`
}

// SpeechConfig holds the text-to-speech vendor configuration
type SpeechConfig struct {
	BaseURL string        `env:"BASE_URL, default=https://api.elevenlabs.io"`
	APIKey  string        `env:"API_KEY"`
	VoiceID string        `env:"VOICE_ID, default=21m00Tcm4TlvDq8ikWAM"`
	Timeout time.Duration `env:"TIMEOUT, default=60s"`
}

// StreamConfig holds streaming session configuration
type StreamConfig struct {
	Enabled          bool          `env:"ENABLED, default=true"`
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT, default=10s"`
	WriteTimeout     time.Duration `env:"WRITE_TIMEOUT, default=10s"`
}

// DashboardConfig holds dashboard login configuration
type DashboardConfig struct {
	Username   string        `env:"USERNAME"`
	Password   string        `env:"PASSWORD"`
	SessionTTL time.Duration `env:"SESSION_TTL, default=24h"`
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	CORSEnabled bool     `env:"CORS_ENABLED, default=true"`
	CORSOrigins []string `env:"CORS_ORIGINS, default=*"`
	CORSMethods []string `env:"CORS_METHODS, default=GET,POST,PUT,DELETE,OPTIONS"`
	CORSHeaders []string `env:"CORS_HEADERS, default=*"`
}

// CacheConfig holds response-cache configuration
type CacheConfig struct {
	PredictionsTTL time.Duration `env:"PREDICTIONS_TTL, default=5m"`
	QuoteTTL       time.Duration `env:"QUOTE_TTL, default=15s"`
	HistoryTTL     time.Duration `env:"HISTORY_TTL, default=5m"`
	NewsTTL        time.Duration `env:"NEWS_TTL, default=1m"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `env:"LEVEL, default=info"`
	Format string `env:"FORMAT, default=json"`
	Output string `env:"OUTPUT, default=stdout"`
}

// Load loads configuration from environment variables using go-envconfig
func Load() (*Config, error) {
	ctx := context.Background()
	var cfg Config

	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Redis.Enabled && c.Redis.Host == "" {
		return fmt.Errorf("redis host is required when redis is enabled")
	}

	if c.Vendors.Predictions.BaseURL == "" {
		return fmt.Errorf("predictions base URL is required")
	}

	if c.Stream.Enabled && c.Vendors.News.StreamURL == "" {
		return fmt.Errorf("news stream URL is required when streaming is enabled")
	}

	return nil
}

// Addr returns the host:port Redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetServerAddr returns server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
