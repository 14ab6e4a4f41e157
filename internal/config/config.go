// Package config loads chatguard settings from defaults, an optional
// config.yaml and the environment, in increasing order of precedence.
// Environment variables use the CHATGUARD_ prefix (CHATGUARD_REDIS_ADDR);
// the unprefixed REDIS_ADDR, NATS_URL, DATABASE_URL and LISTEN_ADDR are also
// honoured.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bookstage/chatguard/internal/moderation"
)

// Config holds the service settings.
type Config struct {
	ListenAddr  string `mapstructure:"listen_addr"`
	RedisAddr   string `mapstructure:"redis_addr"`
	DatabaseURL string `mapstructure:"database_url"`
	NATSURL     string `mapstructure:"nats_url"` // empty disables NATS

	RequestTimeout  time.Duration              `mapstructure:"request_timeout"`
	EffectsTimeout  time.Duration              `mapstructure:"effects_timeout"`
	GateFailureMode moderation.GateFailureMode `mapstructure:"gate_failure_mode"`

	RateLimit  int           `mapstructure:"rate_limit"` // 0 disables throttling
	RateWindow time.Duration `mapstructure:"rate_window"`

	StrikeThreshold int  `mapstructure:"strike_threshold"`
	RunMigrations   bool `mapstructure:"run_migrations"`

	// Admin routes are mounted only when AdminPassword is set.
	AdminUser     string        `mapstructure:"admin_user"`
	AdminPassword string        `mapstructure:"admin_password"`
	RecentWindow  time.Duration `mapstructure:"recent_window"`
}

var defaults = map[string]any{
	"listen_addr":       ":8080",
	"redis_addr":        "localhost:6379",
	"database_url":      "postgres://localhost:5432/chatguard?sslmode=disable",
	"nats_url":          "",
	"request_timeout":   3 * time.Second,
	"effects_timeout":   5 * time.Second,
	"gate_failure_mode": string(moderation.GateFailClosed),
	"rate_limit":        30,
	"rate_window":       time.Minute,
	"strike_threshold":  3,
	"run_migrations":    true,
	"admin_user":        "admin",
	"admin_password":    "",
	"recent_window":     24 * time.Hour,
}

// legacyEnv lists unprefixed variables accepted for a key.
var legacyEnv = map[string]string{
	"listen_addr":  "LISTEN_ADDR",
	"redis_addr":   "REDIS_ADDR",
	"database_url": "DATABASE_URL",
	"nats_url":     "NATS_URL",
}

// Load reads the configuration. configDirs are searched for config.yaml; a
// missing file is not an error.
func Load(configDirs ...string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("CHATGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, "CHATGUARD_"+strings.ToUpper(key), env); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, dir := range configDirs {
		v.AddConfigPath(dir)
	}
	if len(configDirs) > 0 {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.GateFailureMode {
	case moderation.GateFailClosed, moderation.GateFailOpen:
	default:
		return fmt.Errorf("config: gate_failure_mode must be %q or %q, got %q",
			moderation.GateFailClosed, moderation.GateFailOpen, c.GateFailureMode)
	}
	if c.ListenAddr == "" {
		return errors.New("config: listen_addr is required")
	}
	if c.RedisAddr == "" {
		return errors.New("config: redis_addr is required")
	}
	if c.DatabaseURL == "" {
		return errors.New("config: database_url is required")
	}
	if c.AdminPassword != "" && c.AdminUser == "" {
		return errors.New("config: admin_user is required when admin_password is set")
	}
	if c.RequestTimeout < 0 || c.EffectsTimeout < 0 || c.RateWindow < 0 || c.RecentWindow < 0 {
		return errors.New("config: durations must not be negative")
	}
	if c.RateLimit < 0 {
		return errors.New("config: rate_limit must not be negative")
	}
	if c.StrikeThreshold < 1 {
		return fmt.Errorf("config: strike_threshold must be at least 1, got %d", c.StrikeThreshold)
	}
	return nil
}
