package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config keeps runtime settings for the service.
type Config struct {
	TelegramToken string `mapstructure:"telegram_token"`
	DatabaseURL   string `mapstructure:"database_url"`
	HTTPAddr      string `mapstructure:"http_addr"`

	DeliveryBackend string        `mapstructure:"delivery_backend"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisPrefix     string        `mapstructure:"redis_prefix"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	BatchSize       int           `mapstructure:"batch_size"`

	SnoozeDuration time.Duration `mapstructure:"snooze_duration"`
	Timezone       string        `mapstructure:"timezone"`
	DigestTime     string        `mapstructure:"digest_time"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
}

var keys = []string{
	"telegram_token", "database_url", "http_addr",
	"delivery_backend", "redis_addr", "redis_password", "redis_prefix", "poll_interval", "batch_size",
	"snooze_duration", "timezone", "digest_time",
	"log_level", "log_format",
	"rate_limit_per_minute", "shutdown_timeout",
}

// Load reads configuration from the environment (and a .env file when present)
// with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()
	return load(viper.New())
}

func load(v *viper.Viper) (Config, error) {
	v.SetDefault("database_url", "mytaskpro.db")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("delivery_backend", BackendSQLite)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_prefix", "mytaskpro")
	v.SetDefault("poll_interval", "30s")
	v.SetDefault("batch_size", 100)
	v.SetDefault("snooze_duration", "10m")
	v.SetDefault("timezone", "Local")
	v.SetDefault("digest_time", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("rate_limit_per_minute", 120)
	v.SetDefault("shutdown_timeout", "10s")

	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.TelegramToken = strings.TrimSpace(cfg.TelegramToken)
	cfg.DeliveryBackend = strings.ToLower(strings.TrimSpace(cfg.DeliveryBackend))

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.DeliveryBackend {
	case BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("DELIVERY_BACKEND must be %q or %q, got %q", BackendSQLite, BackendRedis, c.DeliveryBackend)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.SnoozeDuration <= 0 {
		return fmt.Errorf("SNOOZE_DURATION must be positive")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}
	return nil
}

// Location resolves Timezone. Load has already validated it.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// BotEnabled reports whether a Telegram token was provided.
func (c Config) BotEnabled() bool {
	return c.TelegramToken != ""
}
