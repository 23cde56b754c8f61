package config

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Actuator   ActuatorConfig   `yaml:"actuator"`
	Sweep      SweepConfig      `yaml:"sweep"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Admin      AdminConfig      `yaml:"admin"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
	CacheTTLSeconds int      `yaml:"cache_ttl_seconds"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// ActuatorConfig holds the settings for device-facing HTTP calls and the
// blink sequence.
type ActuatorConfig struct {
	TimeoutSeconds  int           `yaml:"timeout_seconds"`
	BlinkCount      int           `yaml:"blink_count"`
	BlinkIntervalMS int           `yaml:"blink_interval_ms"`
	Timeout         time.Duration `yaml:"-"`
	BlinkInterval   time.Duration `yaml:"-"`
}

// SweepConfig controls the LED reconciliation sweep.
type SweepConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// AdminConfig tunes the admin credential change flow.
type AdminConfig struct {
	OTPTTLSeconds int           `yaml:"otp_ttl_seconds"`
	OTPTTL        time.Duration `yaml:"-"`
}

// Load reads the configuration from the given path and applies defaults.
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

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
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

	if cfg.Actuator.TimeoutSeconds <= 0 {
		cfg.Actuator.TimeoutSeconds = 5
	}
	cfg.Actuator.Timeout = time.Duration(cfg.Actuator.TimeoutSeconds) * time.Second

	if cfg.Actuator.BlinkCount <= 0 {
		cfg.Actuator.BlinkCount = 5
	}
	if cfg.Actuator.BlinkIntervalMS <= 0 {
		cfg.Actuator.BlinkIntervalMS = 500
	}
	cfg.Actuator.BlinkInterval = time.Duration(cfg.Actuator.BlinkIntervalMS) * time.Millisecond

	if cfg.Sweep.IntervalSeconds <= 0 {
		cfg.Sweep.IntervalSeconds = 300
	}
	cfg.Sweep.Interval = time.Duration(cfg.Sweep.IntervalSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Warn().Msg("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Admin.OTPTTLSeconds <= 0 {
		cfg.Admin.OTPTTLSeconds = 120
	}
	cfg.Admin.OTPTTL = time.Duration(cfg.Admin.OTPTTLSeconds) * time.Second

	return &cfg, nil
}
