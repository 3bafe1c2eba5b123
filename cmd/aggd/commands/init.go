package commands

import (
	"fmt"

	"github.com/marmos91/dapagg/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample aggd configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/aggd/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  aggd init

  # Initialize with custom path
  aggd init --config /etc/aggd/config.yaml

  # Force overwrite existing config
  aggd init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		configPath, err = config.InitConfig(initForce)
	}

	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Run migrations with: aggd migrate")
	fmt.Println("  3. Start the server with: aggd start")
	fmt.Printf("  4. Or specify custom config: aggd start --config %s\n", configPath)
	fmt.Println("\nSecurity note:")
	fmt.Println("  A random admin secret has been generated for development use.")
	fmt.Println("  For production, generate a secure secret and supply it via an")
	fmt.Println("  environment variable instead of committing it to the file:")
	fmt.Println("    export AGGD_API_ADMIN_SECRETS=$(openssl rand -hex 32)")

	return nil
}
