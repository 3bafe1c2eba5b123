package config

import (
	"testing"
	"time"

	"github.com/marmos91/dapagg/internal/bytesize"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level INFO, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format text, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output stdout, got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_LevelNormalization(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "debug"}}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized level DEBUG, got %q", cfg.Logging.Level)
	}
}

func TestApplyDefaults_Telemetry(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Telemetry.Endpoint != "localhost:4317" {
		t.Errorf("Expected default OTLP endpoint, got %q", cfg.Telemetry.Endpoint)
	}
	if cfg.Telemetry.SampleRate != 1.0 {
		t.Errorf("Expected default sample rate 1.0, got %v", cfg.Telemetry.SampleRate)
	}
	if cfg.Telemetry.Profiling.Endpoint != "http://localhost:4040" {
		t.Errorf("Expected default pyroscope endpoint, got %q", cfg.Telemetry.Profiling.Endpoint)
	}
	if len(cfg.Telemetry.Profiling.ProfileTypes) == 0 {
		t.Error("Expected default profile types to be set")
	}
}

func TestApplyDefaults_ShutdownTimeout(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
}

func TestApplyDefaults_API(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.API.Port != 8080 {
		t.Errorf("Expected default API port 8080, got %d", cfg.API.Port)
	}
	if cfg.API.ReadTimeout != 10*time.Second {
		t.Errorf("Expected default API read timeout 10s, got %v", cfg.API.ReadTimeout)
	}
	if !cfg.API.IsEnabled() {
		t.Error("Expected API to be enabled by default")
	}
	if cfg.API.MaxUploadSize != bytesize.MiB {
		t.Errorf("Expected default max upload size 1MiB, got %v", cfg.API.MaxUploadSize)
	}
}

func TestApplyDefaults_Metrics(t *testing.T) {
	cfg := &Config{Metrics: MetricsConfig{Enabled: true}}
	ApplyDefaults(cfg)

	if cfg.Metrics.Port != 9090 {
		t.Errorf("Expected default metrics port 9090, got %d", cfg.Metrics.Port)
	}
}

func TestApplyDefaults_MetricsDisabled_NoPort(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Metrics.Port != 0 {
		t.Errorf("Expected metrics port to stay 0 when disabled, got %d", cfg.Metrics.Port)
	}
}

func TestApplyDefaults_Database(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Database.SSLMode != "prefer" {
		t.Errorf("Expected default ssl_mode prefer, got %q", cfg.Database.SSLMode)
	}
	if cfg.Database.MaxConns == 0 {
		t.Error("Expected default max_conns to be set")
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	if cfg.Database.Database == "" {
		t.Error("Expected default config to set a database name")
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected default config to pass validation, got: %v", err)
	}
}
