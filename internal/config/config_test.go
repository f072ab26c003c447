package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected defaults to load, got %v", err)
	}

	if cfg.Port != 3001 {
		t.Errorf("Expected default port 3001, got %d", cfg.Port)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.MaxReconnectAttempts != 5 {
		t.Errorf("Expected default max reconnect attempts 5, got %d", cfg.MaxReconnectAttempts)
	}
	if cfg.HeartbeatInterval != 30*time.Second {
		t.Errorf("Expected default heartbeat interval 30s, got %v", cfg.HeartbeatInterval)
	}
	if cfg.ConnectionTimeout != 10*time.Second {
		t.Errorf("Expected default connection timeout 10s, got %v", cfg.ConnectionTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level info, got %q", cfg.LogLevel)
	}
	if cfg.Environment != EnvDevelopment {
		t.Errorf("Expected default environment development, got %q", cfg.Environment)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("HEARTBEAT_INTERVAL", "5000")
	t.Setenv("CONNECTION_TIMEOUT", "2000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("APP_ENV", EnvTest)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected overridden config to load, got %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Port)
	}
	if cfg.HeartbeatInterval != 5*time.Second {
		t.Errorf("Expected heartbeat interval 5s, got %v", cfg.HeartbeatInterval)
	}
	if cfg.ConnectionTimeout != 2*time.Second {
		t.Errorf("Expected connection timeout 2s, got %v", cfg.ConnectionTimeout)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level debug, got %q", cfg.LogLevel)
	}
	if cfg.Environment != EnvTest {
		t.Errorf("Expected environment test, got %q", cfg.Environment)
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("PORT", "70000")

	if _, err := Load(); err == nil {
		t.Error("Expected startup failure for out-of-range port")
	}

	t.Setenv("PORT", "0")
	if _, err := Load(); err == nil {
		t.Error("Expected startup failure for port 0")
	}
}

func TestLoad_NegativeShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT_MS", "-1")

	if _, err := Load(); err == nil {
		t.Error("Expected startup failure for negative shutdown timeout")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port:                 3001,
			ShutdownTimeout:      30 * time.Second,
			MaxReconnectAttempts: 5,
			HeartbeatInterval:    30 * time.Second,
			ConnectionTimeout:    10 * time.Second,
			LogLevel:             "info",
			Environment:          EnvDevelopment,
			EventLogPath:         "./draftproxy.db",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"port too low", func(c *Config) { c.Port = 0 }, true},
		{"port too high", func(c *Config) { c.Port = 65536 }, true},
		{"negative shutdown timeout", func(c *Config) { c.ShutdownTimeout = -time.Second }, true},
		{"zero heartbeat interval", func(c *Config) { c.HeartbeatInterval = 0 }, true},
		{"zero connection timeout", func(c *Config) { c.ConnectionTimeout = 0 }, true},
		{"bogus log level", func(c *Config) { c.LogLevel = "noisy" }, true},
		{"bogus environment", func(c *Config) { c.Environment = "staging" }, true},
		{"empty event log path", func(c *Config) { c.EventLogPath = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error, got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected valid config, got %v", err)
			}
		})
	}
}

func TestNewLogger_LevelAndFormat(t *testing.T) {
	cfg := &Config{LogLevel: "warn", Environment: EnvProduction}
	logger := cfg.NewLogger()

	if logger.GetLevel() != logrus.WarnLevel {
		t.Errorf("Expected warn level, got %v", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Error("Expected JSON formatter in production")
	}

	cfg = &Config{LogLevel: "info", Environment: EnvDevelopment}
	if _, ok := cfg.NewLogger().Formatter.(*logrus.TextFormatter); !ok {
		t.Error("Expected text formatter in development")
	}
}
