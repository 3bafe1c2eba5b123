package api

import (
	"time"

	"github.com/marmos91/dapagg/internal/bytesize"
)

// APIConfig configures the HTTP server exposing the aggregator's
// client-facing and administrative endpoints.
//
// When Enabled is false, no API server is started (zero overhead).
type APIConfig struct {
	// Enabled controls whether the API server is started.
	// Default: true (API is enabled by default)
	// Use a pointer to distinguish "not set" from "explicitly false"
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the API endpoints.
	// Default: 8080
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. A zero or negative value means there is no timeout.
	// Default: 10s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	// A zero or negative value means there is no timeout.
	// Default: 10s
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled. If zero, the value of ReadTimeout is used.
	// Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// AdminSecrets authenticates the administrative routes (§6.2): a
	// request's Authorization header must carry one of these shared
	// secrets, compared in constant time.
	AdminSecrets []string `mapstructure:"admin_secrets" yaml:"admin_secrets"`

	// MaxUploadSize caps the request body accepted by the client-facing
	// /upload and /aggregate routes. Reports and aggregate envelopes are
	// small, fixed-shape messages; this guards against a client or peer
	// streaming an oversized body at the server.
	// Default: 1MiB
	MaxUploadSize bytesize.ByteSize `mapstructure:"max_upload_size" yaml:"max_upload_size"`
}

// IsEnabled returns whether the API server is enabled.
// Defaults to true if not explicitly set.
func (c *APIConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true // Default: enabled
	}
	return *c.Enabled
}

// ApplyDefaults fills in zero values with sensible defaults. Exported so
// pkg/config can apply it while loading the top-level Config.
func (c *APIConfig) ApplyDefaults() {
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.MaxUploadSize == 0 {
		c.MaxUploadSize = bytesize.MiB
	}
}

// applyDefaults is the in-package spelling used by NewServer.
func (c *APIConfig) applyDefaults() {
	c.ApplyDefaults()
}
