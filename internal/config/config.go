package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rankgate/rankgate/internal/types"
	"github.com/spf13/viper"
)

// Configuration is the root configuration for the rankgate process.
type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	ClickHouse ClickHouseConfig `validate:"required"`
	Index      IndexConfig      `validate:"required"`
	Authz      AuthzConfig      `validate:"required"`
	Pipeline   PipelineConfig   `validate:"required"`
	Sentry     SentryConfig
	Pyroscope  PyroscopeConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `mapstructure:"mode" validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `mapstructure:"level" validate:"required"`
}

// ClickHouseConfig points at the ClickHouse cluster backing the Index Source.
type ClickHouseConfig struct {
	Address  string `mapstructure:"address" validate:"required"`
	TLS      bool   `mapstructure:"tls"`
	Username string `mapstructure:"username" validate:"required"`
	Password string `mapstructure:"password" validate:"required"`
	Database string `mapstructure:"database" validate:"required"`
}

func (c ClickHouseConfig) GetClientOptions() *clickhouse.Options {
	options := &clickhouse.Options{
		Addr: []string{c.Address},
		Auth: clickhouse.Auth{
			Database: c.Database,
			Username: c.Username,
			Password: c.Password,
		},
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	}
	if c.TLS {
		options.TLS = &tls.Config{}
	}
	return options
}

// IndexConfig controls the Index Source's pagination behavior (spec §4.1, §6).
type IndexConfig struct {
	Table        string `mapstructure:"table" default:"events"`
	PageSize     int    `mapstructure:"page_size" default:"200"`
	RateLimitRPS int    `mapstructure:"rate_limit_rps" default:"0"` // 0 disables pacing
}

// AuthzConfig controls the Authorizer Client (spec §4.2, §6).
type AuthzConfig struct {
	PDPURL                    string        `mapstructure:"pdp_url" validate:"required"`
	APIKey                    string        `mapstructure:"api_key"`
	Deadline                  time.Duration `mapstructure:"deadline" default:"5s"`
	PoolMaxConnections        int           `mapstructure:"pool_max_connections" default:"500"`
	PoolPendingAcquireTimeout time.Duration `mapstructure:"pool_pending_acquire_timeout" default:"2s"`
	PoolMaxIdleTime           time.Duration `mapstructure:"pool_max_idle_time" default:"90s"`
	PoolMaxLifeTime           time.Duration `mapstructure:"pool_max_life_time" default:"10m"`
	MaxRetries                int           `mapstructure:"max_retries" default:"1"`
}

// PipelineConfig controls the Batcher, Ordered Concurrent Filter, and Driver
// (spec §4.3, §4.4, §4.5, §6).
type PipelineConfig struct {
	Concurrency  int           `mapstructure:"concurrency" default:"4"`
	BatchSize    int           `mapstructure:"batch_size" default:"20"`
	BatchDelay   time.Duration `mapstructure:"batch_delay" default:"5s"`
	DefaultLimit int           `mapstructure:"default_limit" default:"200"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" default:"1.0"`
}

type PyroscopeConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	AppName       string `mapstructure:"app_name" default:"rankgate"`
	ServerAddress string `mapstructure:"server_address"`
}

// NewConfig loads configuration with an optional .env overlay, then a
// config.yaml searched in a couple of conventional locations, then
// environment variables with an "RANKGATE_" prefix taking final
// precedence.
func NewConfig() (*Configuration, error) {
	v := viper.New()

	_ = godotenv.Load()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("RANKGATE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Defaults matching the `default` struct tags above.
	v.SetDefault("index.table", "events")
	v.SetDefault("index.page_size", 200)
	v.SetDefault("authz.deadline", 5*time.Second)
	v.SetDefault("authz.pool_max_connections", 500)
	v.SetDefault("authz.pool_pending_acquire_timeout", 2*time.Second)
	v.SetDefault("authz.pool_max_idle_time", 90*time.Second)
	v.SetDefault("authz.pool_max_life_time", 10*time.Minute)
	v.SetDefault("authz.max_retries", 1)
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.batch_size", 20)
	v.SetDefault("pipeline.batch_delay", 5*time.Second)
	v.SetDefault("pipeline.default_limit", 200)
	v.SetDefault("sentry.sample_rate", 1.0)
	v.SetDefault("pyroscope.app_name", "rankgate")

	var notFound viper.ConfigFileNotFoundError
	if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		return nil, err
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	return &cfg, nil
}

func (c Configuration) Validate() error {
	return validator.New().Struct(c)
}

// GetDefaultConfig returns a minimal configuration good enough for the
// package-level default logger; it is not sufficient to run the pipeline.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
	}
}
