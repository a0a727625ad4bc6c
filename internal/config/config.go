// Package config loads the gateway's runtime configuration from a YAML file
// (CONFIG_PATH, or config/gateway.yaml when unset) overlaid with
// environment variable overrides, the same two-tier pattern the teacher
// repo uses for its features.yaml / getEnvOrDefault split.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration for cmd/server.
type Config struct {
	HTTPAddr string `mapstructure:"http_addr"`

	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`

	JWTSecret         string        `mapstructure:"jwt_secret"`
	AccessTokenExpiry time.Duration `mapstructure:"access_token_expiry"`
	RefreshTokenTTL   time.Duration `mapstructure:"refresh_token_ttl"`

	Upstream UpstreamConfig `mapstructure:"upstream"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	UserCacheTTL time.Duration `mapstructure:"user_cache_ttl"`

	ModelsConfigPath string `mapstructure:"models_config_path"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type UpstreamConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	APIKey             string        `mapstructure:"api_key"`
	Model              string        `mapstructure:"model"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	MaxIdleConns       int           `mapstructure:"max_idle_conns"`
	HardStreamTimeout  time.Duration `mapstructure:"hard_stream_timeout"`
	NoByteTimeout      time.Duration `mapstructure:"no_byte_timeout"`
}

type RateLimitConfig struct {
	GlobalRequests  int           `mapstructure:"global_requests"`
	GlobalWindow    time.Duration `mapstructure:"global_window"`
	CompletionRPM   int           `mapstructure:"completion_rpm"`
	CompletionBurst int           `mapstructure:"completion_burst"`
	BypassLocalhost bool          `mapstructure:"bypass_localhost"`
}

// Default returns the configuration used when no file is found, matching
// the defaults cited throughout spec.md §4 and §6.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "gateway",
			Password: "gateway",
			Database: "gateway",
			SSLMode:  "disable",
		},
		Redis: RedisConfig{Addr: "localhost:6379"},

		JWTSecret:         "dev-secret-change-me",
		AccessTokenExpiry: 15 * time.Minute,
		RefreshTokenTTL:   30 * 24 * time.Hour,

		Upstream: UpstreamConfig{
			BaseURL:           "http://localhost:11434/v1/chat/completions",
			Model:             "default",
			MaxIdleConns:      50,
			HardStreamTimeout: 45 * time.Second,
			NoByteTimeout:     30 * time.Second,
		},

		RateLimit: RateLimitConfig{
			GlobalRequests:  500,
			GlobalWindow:    5 * time.Minute,
			CompletionRPM:   30,
			CompletionBurst: 5,
			BypassLocalhost: true,
		},

		UserCacheTTL: 30 * time.Second,

		ModelsConfigPath: "config/models.yaml",
	}
}

// Load reads config from CONFIG_PATH (or ./config/gateway.yaml when unset),
// falling back to Default() when no file exists, then applies environment
// overrides for the handful of secrets/knobs operators tune per-deployment.
func Load() (Config, error) {
	cfg := Default()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/gateway.yaml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, statErr := os.Stat(path); statErr != nil {
				// File genuinely absent: fall through to defaults + env.
			} else {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	} else if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.HTTPAddr = getEnvOrDefault("HTTP_ADDR", cfg.HTTPAddr)

	cfg.Postgres.Host = getEnvOrDefault("POSTGRES_HOST", cfg.Postgres.Host)
	cfg.Postgres.Port = getEnvOrDefaultInt("POSTGRES_PORT", cfg.Postgres.Port)
	cfg.Postgres.User = getEnvOrDefault("POSTGRES_USER", cfg.Postgres.User)
	cfg.Postgres.Password = getEnvOrDefault("POSTGRES_PASSWORD", cfg.Postgres.Password)
	cfg.Postgres.Database = getEnvOrDefault("POSTGRES_DB", cfg.Postgres.Database)
	cfg.Postgres.SSLMode = getEnvOrDefault("POSTGRES_SSLMODE", cfg.Postgres.SSLMode)

	cfg.Redis.Addr = getEnvOrDefault("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)

	cfg.JWTSecret = getEnvOrDefault("JWT_SECRET", cfg.JWTSecret)

	cfg.Upstream.BaseURL = getEnvOrDefault("UPSTREAM_BASE_URL", cfg.Upstream.BaseURL)
	cfg.Upstream.APIKey = getEnvOrDefault("UPSTREAM_API_KEY", cfg.Upstream.APIKey)
	cfg.Upstream.Model = getEnvOrDefault("UPSTREAM_MODEL", cfg.Upstream.Model)
	if v := os.Getenv("UPSTREAM_INSECURE_SKIP_VERIFY"); v != "" {
		cfg.Upstream.InsecureSkipVerify = v == "1" || v == "true"
	}

	cfg.ModelsConfigPath = getEnvOrDefault("MODELS_CONFIG_PATH", cfg.ModelsConfigPath)
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
