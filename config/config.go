package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the environment-driven settings for the service
type Config struct {
	Port        string `mapstructure:"PORT"`
	MetricsPort string `mapstructure:"METRICS_PORT"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	MaxRetryAttempts            int `mapstructure:"MAX_RETRY_ATTEMPTS"`
	ConsecutiveFailureThreshold int `mapstructure:"CONSECUTIVE_FAILURE_THRESHOLD"`
	DefaultTimeoutSeconds       int `mapstructure:"DEFAULT_TIMEOUT_SECONDS"`
	WorkerCount                 int `mapstructure:"WORKER_COUNT"`

	// RetryDelays is the comma-separated delay table in seconds,
	// truncated to MAX_RETRY_ATTEMPTS entries
	RetryDelays string `mapstructure:"RETRY_DELAYS"`

	// WebhooksFile optionally seeds subscriptions from a YAML file at startup
	WebhooksFile string `mapstructure:"WEBHOOKS_FILE"`
}

func GetConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("METRICS_PORT", "9090")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("MAX_RETRY_ATTEMPTS", 5)
	viper.SetDefault("CONSECUTIVE_FAILURE_THRESHOLD", 10)
	viper.SetDefault("DEFAULT_TIMEOUT_SECONDS", 30)
	viper.SetDefault("WORKER_COUNT", 4)
	viper.SetDefault("RETRY_DELAYS", "60,300,1800,7200,86400")
	viper.SetDefault("WEBHOOKS_FILE", "")

	// A missing .env file is fine, the environment wins anyway
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the delivery pipeline cannot run with
func (c *Config) Validate() error {
	if c.MaxRetryAttempts < 1 {
		return fmt.Errorf("MAX_RETRY_ATTEMPTS must be at least 1, got %d", c.MaxRetryAttempts)
	}
	if c.ConsecutiveFailureThreshold < 1 {
		return fmt.Errorf("CONSECUTIVE_FAILURE_THRESHOLD must be at least 1, got %d", c.ConsecutiveFailureThreshold)
	}
	if c.DefaultTimeoutSeconds < 1 {
		return fmt.Errorf("DEFAULT_TIMEOUT_SECONDS must be at least 1, got %d", c.DefaultTimeoutSeconds)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1, got %d", c.WorkerCount)
	}
	return nil
}

// DispatchTimeout returns the per-attempt HTTP timeout
func (c *Config) DispatchTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutSeconds) * time.Second
}
