package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks that cfg is complete and internally consistent. Struct
// tags cover field-level constraints (ports, required values); the
// cross-field checks below cover everything a `validate` tag can't
// express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w", err)
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if !strings.EqualFold(cfg.Logging.Level, "DEBUG") &&
		!strings.EqualFold(cfg.Logging.Level, "INFO") &&
		!strings.EqualFold(cfg.Logging.Level, "WARN") &&
		!strings.EqualFold(cfg.Logging.Level, "ERROR") {
		return fmt.Errorf("logging.level: must be one of DEBUG, INFO, WARN, ERROR (oneof)")
	}

	return nil
}
