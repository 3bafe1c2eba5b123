package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// configTemplate is the scaffold written by InitConfig / InitConfigToPath.
// %s is filled with a freshly generated admin secret.
const configTemplate = `# Aggregator Configuration File
#
# This file configures a DAP aggregator instance: the postgres
# datastore, the client-facing and administrative HTTP surface, logging,
# and observability. Per-task secrets (VDAF verify keys, HPKE keypairs,
# aggregator auth keys) are generated by the server itself on task
# creation via the administrative API and are not configured here.

logging:
  level: "INFO"
  format: "text"
  output: "stdout"

shutdown_timeout: 30s

database:
  host: "localhost"
  port: 5432
  database: "dapagg"
  user: "dapagg"
  password: ""  # Supply via AGGD_DATABASE_PASSWORD instead of committing it here
  ssl_mode: "prefer"

metrics:
  enabled: false
  port: 9090

api:
  enabled: true
  port: 8080
  read_timeout: 10s
  write_timeout: 10s
  idle_timeout: 60s
  max_upload_size: 1MiB
  # Authenticates requests to the administrative surface (§6.2). Treat
  # this like a password: generate your own for production with
  # openssl rand -hex 32, and prefer supplying it via
  # AGGD_API_ADMIN_SECRETS instead of committing it here.
  admin_secrets:
    - "%s"

telemetry:
  enabled: false
  endpoint: "localhost:4317"
  insecure: true
  sample_rate: 1.0
  profiling:
    enabled: false
    endpoint: "http://localhost:4040"
`

// generateSecret returns a random hex-encoded secret suitable for use as
// an admin bootstrap credential.
func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// InitConfig writes a sample configuration file to the default location
// ($XDG_CONFIG_HOME/aggd/config.yaml). Fails if the file already exists
// unless force is true.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration file to path. Fails if
// the file already exists unless force is true.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
		}
	}

	secret, err := generateSecret()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(configTemplate, secret)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
