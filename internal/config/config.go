package config

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Environment names accepted in APP_ENV.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Config holds all runtime settings, sourced from the environment.
type Config struct {
	Port                 int
	ShutdownTimeout      time.Duration
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration
	ConnectionTimeout    time.Duration
	LogLevel             string
	Environment          string
	EventLogPath         string
}

// Load reads configuration from environment variables with defaults.
// Interval settings are expressed in milliseconds on the wire (PORT aside),
// matching the deployment convention of the upstream draft clients.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("PORT", 3001)
	v.SetDefault("SHUTDOWN_TIMEOUT_MS", 30000)
	v.SetDefault("MAX_RECONNECT_ATTEMPTS", 5)
	v.SetDefault("HEARTBEAT_INTERVAL", 30000)
	v.SetDefault("CONNECTION_TIMEOUT", 10000)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", EnvDevelopment)
	v.SetDefault("EVENT_LOG_PATH", "./draftproxy.db")
	v.AutomaticEnv()

	cfg := &Config{
		Port:                 v.GetInt("PORT"),
		ShutdownTimeout:      time.Duration(v.GetInt("SHUTDOWN_TIMEOUT_MS")) * time.Millisecond,
		MaxReconnectAttempts: v.GetInt("MAX_RECONNECT_ATTEMPTS"),
		HeartbeatInterval:    time.Duration(v.GetInt("HEARTBEAT_INTERVAL")) * time.Millisecond,
		ConnectionTimeout:    time.Duration(v.GetInt("CONNECTION_TIMEOUT")) * time.Millisecond,
		LogLevel:             v.GetString("LOG_LEVEL"),
		Environment:          v.GetString("APP_ENV"),
		EventLogPath:         v.GetString("EVENT_LOG_PATH"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot produce a working server.
// Invalid settings are startup failures, never runtime surprises.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT_MS must be >= 0, got %v", c.ShutdownTimeout)
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("MAX_RECONNECT_ATTEMPTS must be >= 0, got %d", c.MaxReconnectAttempts)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be positive, got %v", c.HeartbeatInterval)
	}
	if c.ConnectionTimeout <= 0 {
		return fmt.Errorf("CONNECTION_TIMEOUT must be positive, got %v", c.ConnectionTimeout)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL %q is not a valid level: %w", c.LogLevel, err)
	}
	switch c.Environment {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("APP_ENV must be one of development, production, test; got %q", c.Environment)
	}
	if c.EventLogPath == "" {
		return fmt.Errorf("EVENT_LOG_PATH cannot be empty")
	}
	return nil
}

// NewLogger builds the process logger from the configured level and
// environment. Production emits JSON for log aggregation.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if c.Environment == EnvProduction {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
