package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Valkey   ValkeyConfig
	Bridge   BridgeConfig
	Queue    QueueConfig
	Workers  WorkersConfig
	Security SecurityConfig
}

type AppConfig struct {
	Version string
	Port    string
	Debug   bool
	BaseURL string
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite". URL is a DSN for postgres, a file
	// path for sqlite.
	Driver string
	URL    string
}

type ValkeyConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

type BridgeConfig struct {
	BaseURL        string
	Timeout        time.Duration
	WebhookBaseURL string
	SystemNumber   string
}

type QueueConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	TTL        time.Duration
}

type WorkersConfig struct {
	ProcessorWorkers int
	MonitorInterval  time.Duration
}

type SecurityConfig struct {
	SecretKey     string
	EncryptionKey string
	WebhookSecret string
}

const (
	minBridgeTimeout = 5 * time.Second
	maxBridgeTimeout = 300 * time.Second
)

// Load reads configuration from the environment (and .env when present) and
// validates the secrets the core depends on.
func Load() (*Config, error) {
	// .env is optional; the environment always wins.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_PORT", "8001")
	v.SetDefault("APP_DEBUG", false)
	v.SetDefault("APP_VERSION", "v1.0.0")
	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_URL", "storages/zapa.db")
	v.SetDefault("REDIS_URL", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("QUEUE_KEY_PREFIX", "zapa")
	v.SetDefault("WHATSAPP_BRIDGE_URL", "http://localhost:3000")
	v.SetDefault("WHATSAPP_BRIDGE_TIMEOUT", 30)
	v.SetDefault("MESSAGE_PROCESSOR_WORKERS", 3)
	v.SetDefault("MONITOR_INTERVAL", 30)
	v.SetDefault("MESSAGE_QUEUE_MAX_RETRIES", 3)
	v.SetDefault("MESSAGE_QUEUE_RETRY_DELAY", 60)
	v.SetDefault("MESSAGE_QUEUE_TTL", 86400)

	bridgeTimeout := time.Duration(v.GetInt("WHATSAPP_BRIDGE_TIMEOUT")) * time.Second
	if bridgeTimeout < minBridgeTimeout {
		bridgeTimeout = minBridgeTimeout
	}
	if bridgeTimeout > maxBridgeTimeout {
		bridgeTimeout = maxBridgeTimeout
	}

	cfg := &Config{
		App: AppConfig{
			Version: v.GetString("APP_VERSION"),
			Port:    v.GetString("APP_PORT"),
			Debug:   v.GetBool("APP_DEBUG"),
			BaseURL: v.GetString("WEBHOOK_BASE_URL"),
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(v.GetString("DATABASE_DRIVER")),
			URL:    v.GetString("DATABASE_URL"),
		},
		Valkey: ValkeyConfig{
			Address:   normalizeValkeyAddress(v.GetString("REDIS_URL")),
			Password:  v.GetString("REDIS_PASSWORD"),
			DB:        v.GetInt("REDIS_DB"),
			KeyPrefix: v.GetString("QUEUE_KEY_PREFIX"),
		},
		Bridge: BridgeConfig{
			BaseURL:        strings.TrimRight(v.GetString("WHATSAPP_BRIDGE_URL"), "/"),
			Timeout:        bridgeTimeout,
			WebhookBaseURL: v.GetString("WEBHOOK_BASE_URL"),
			SystemNumber:   v.GetString("WHATSAPP_SYSTEM_NUMBER"),
		},
		Queue: QueueConfig{
			MaxRetries: v.GetInt("MESSAGE_QUEUE_MAX_RETRIES"),
			RetryDelay: time.Duration(v.GetInt("MESSAGE_QUEUE_RETRY_DELAY")) * time.Second,
			TTL:        time.Duration(v.GetInt("MESSAGE_QUEUE_TTL")) * time.Second,
		},
		Workers: WorkersConfig{
			ProcessorWorkers: v.GetInt("MESSAGE_PROCESSOR_WORKERS"),
			MonitorInterval:  time.Duration(v.GetInt("MONITOR_INTERVAL")) * time.Second,
		},
		Security: SecurityConfig{
			SecretKey:     v.GetString("SECRET_KEY"),
			EncryptionKey: v.GetString("ENCRYPTION_KEY"),
			WebhookSecret: v.GetString("WEBHOOK_SECRET"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Security.SecretKey) < 32 {
		return fmt.Errorf("SECRET_KEY must be at least 32 characters")
	}
	if len(c.Security.EncryptionKey) < 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be at least 32 characters")
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Workers.ProcessorWorkers <= 0 {
		c.Workers.ProcessorWorkers = 3
	}
	return nil
}

// WebhookURL is the callback the bridge is configured to deliver events to.
func (c *Config) WebhookURL() string {
	base := strings.TrimRight(c.Bridge.WebhookBaseURL, "/")
	if base == "" {
		base = strings.TrimRight(c.App.BaseURL, "/")
	}
	return base + "/api/v1/webhooks/whatsapp"
}

// normalizeValkeyAddress accepts either a bare host:port or a redis:// URL.
func normalizeValkeyAddress(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "redis://")
	raw = strings.TrimPrefix(raw, "valkey://")
	if i := strings.Index(raw, "/"); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		raw = "localhost:6379"
	}
	return raw
}
