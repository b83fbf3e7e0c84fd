package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// GatewayConfig holds the device connection gateway configuration.
type GatewayConfig struct {
	// FreshnessWindowSeconds is the single canonical liveness window: a device
	// is ONLINE iff its last ping is within this span.
	FreshnessWindowSeconds int           `yaml:"freshness_window_seconds"`
	FreshnessWindow        time.Duration `yaml:"-"` // Ignored by YAML parser
	SweepIntervalSeconds   int           `yaml:"sweep_interval_seconds"`
	SweepInterval          time.Duration `yaml:"-"`
	SendBufferSize         int           `yaml:"send_buffer_size"`
	MaxMessageBytes        int           `yaml:"max_message_bytes"`
	PongTimeoutSeconds     int           `yaml:"pong_timeout_seconds"`
	PingIntervalSeconds    int           `yaml:"ping_interval_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Gateway.FreshnessWindowSeconds <= 0 {
		cfg.Gateway.FreshnessWindowSeconds = 30
	}
	cfg.Gateway.FreshnessWindow = time.Duration(cfg.Gateway.FreshnessWindowSeconds) * time.Second

	if cfg.Gateway.SweepIntervalSeconds <= 0 {
		cfg.Gateway.SweepIntervalSeconds = 10
	}
	cfg.Gateway.SweepInterval = time.Duration(cfg.Gateway.SweepIntervalSeconds) * time.Second

	if cfg.Gateway.SendBufferSize <= 0 {
		cfg.Gateway.SendBufferSize = 256
	}
	if cfg.Gateway.MaxMessageBytes <= 0 {
		cfg.Gateway.MaxMessageBytes = 4096
	}
	if cfg.Gateway.PongTimeoutSeconds <= 0 {
		cfg.Gateway.PongTimeoutSeconds = 60
	}
	if cfg.Gateway.PingIntervalSeconds <= 0 {
		cfg.Gateway.PingIntervalSeconds = 30
	}

	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
