package main

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after applying the environment (FLORA_USER,
FLORA_PASSWORD, PUBHARVEST_DB, and a .env file) and defaults. The Flora
password is masked.

Examples:
  pubharvest config show --human
  pubharvest --config /etc/pubharvest.yml config show`,
	RunE: runConfigShow,
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	redacted := cfg.Redacted()

	if humanOutput {
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(redacted); err != nil {
			exitWithError(ExitError, "encoding config: %v", err)
		}
		return enc.Close()
	}
	outputJSON(redacted)
	return nil
}
