package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig
	ClickHouse ClickHouseConfig
	Intel      IntelConfig
	Refresh    RefreshConfig
}

type AppConfig struct {
	Env  string
	Port int
	Host string
}

type ClickHouseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

type IntelConfig struct {
	VirusTotalKey   string
	AlienVaultKey   string
	CacheWindow     time.Duration
	ProviderTimeout time.Duration
	RequestTimeout  time.Duration
	RateLimitDelay  time.Duration
}

type RefreshConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/app")
	viper.AddConfigPath("/etc/threatlens")

	// Environment variables
	viper.AutomaticEnv()

	bindEnvVars()
	setDefaults()

	// Config file is optional; env vars and defaults cover everything
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("Error reading config file", "error", err)
		}
	}

	config := &Config{
		App: AppConfig{
			Env:  viper.GetString("APP_ENV"),
			Port: viper.GetInt("APP_PORT"),
			Host: viper.GetString("APP_HOST"),
		},
		ClickHouse: ClickHouseConfig{
			Host:     viper.GetString("CLICKHOUSE_HOST"),
			Port:     viper.GetInt("CLICKHOUSE_PORT"),
			User:     viper.GetString("CLICKHOUSE_USER"),
			Password: viper.GetString("CLICKHOUSE_PASSWORD"),
			Database: viper.GetString("CLICKHOUSE_DATABASE"),
		},
		Intel: IntelConfig{
			VirusTotalKey:   viper.GetString("VIRUSTOTAL_API_KEY"),
			AlienVaultKey:   viper.GetString("OTX_API_KEY"),
			CacheWindow:     viper.GetDuration("INTEL_CACHE_WINDOW"),
			ProviderTimeout: viper.GetDuration("INTEL_PROVIDER_TIMEOUT"),
			RequestTimeout:  viper.GetDuration("INTEL_REQUEST_TIMEOUT"),
			RateLimitDelay:  viper.GetDuration("INTEL_RATE_LIMIT"),
		},
		Refresh: RefreshConfig{
			Enabled:   viper.GetBool("REFRESH_ENABLED"),
			Interval:  viper.GetDuration("REFRESH_INTERVAL"),
			BatchSize: viper.GetInt("REFRESH_BATCH"),
		},
	}

	return config, nil
}

func bindEnvVars() {
	// App
	viper.BindEnv("APP_ENV")
	viper.BindEnv("APP_PORT")
	viper.BindEnv("APP_HOST")

	// ClickHouse
	viper.BindEnv("CLICKHOUSE_HOST")
	viper.BindEnv("CLICKHOUSE_PORT")
	viper.BindEnv("CLICKHOUSE_USER")
	viper.BindEnv("CLICKHOUSE_PASSWORD")
	viper.BindEnv("CLICKHOUSE_DATABASE")

	// Providers
	viper.BindEnv("VIRUSTOTAL_API_KEY")
	viper.BindEnv("OTX_API_KEY")
	viper.BindEnv("INTEL_CACHE_WINDOW")
	viper.BindEnv("INTEL_PROVIDER_TIMEOUT")
	viper.BindEnv("INTEL_REQUEST_TIMEOUT")
	viper.BindEnv("INTEL_RATE_LIMIT")

	// Refresh scheduler
	viper.BindEnv("REFRESH_ENABLED")
	viper.BindEnv("REFRESH_INTERVAL")
	viper.BindEnv("REFRESH_BATCH")
}

func setDefaults() {
	// App defaults
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_HOST", "0.0.0.0")

	// ClickHouse defaults
	viper.SetDefault("CLICKHOUSE_HOST", "localhost")
	viper.SetDefault("CLICKHOUSE_PORT", 9000)
	viper.SetDefault("CLICKHOUSE_USER", "threatlens")
	viper.SetDefault("CLICKHOUSE_DATABASE", "threat_intel")

	// Provider defaults
	viper.SetDefault("INTEL_CACHE_WINDOW", 7*24*time.Hour)
	viper.SetDefault("INTEL_PROVIDER_TIMEOUT", 10*time.Second)
	viper.SetDefault("INTEL_REQUEST_TIMEOUT", 30*time.Second)
	viper.SetDefault("INTEL_RATE_LIMIT", 200*time.Millisecond)

	// Refresh defaults
	viper.SetDefault("REFRESH_ENABLED", true)
	viper.SetDefault("REFRESH_INTERVAL", 6*time.Hour)
	viper.SetDefault("REFRESH_BATCH", 50)
}

func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func SetupLogger(cfg *Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if cfg.IsDevelopment() {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
