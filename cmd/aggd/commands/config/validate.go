package config

import (
	"fmt"

	"github.com/marmos91/dapagg/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Load and validate the aggd configuration file without starting the server.

Reports the first validation error found, if any, and exits non-zero.

Examples:
  # Validate the default config
  aggd config validate

  # Validate a specific file
  aggd config validate --config /etc/aggd/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Println("Configuration is valid.")
	return nil
}
