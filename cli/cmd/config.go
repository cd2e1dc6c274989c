package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gagps/ecommerce-cx/cli/pkg/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Prints the configuration the services would load: the config file merged with
defaults and ECX_* environment overrides. Secrets are never printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadedConfig()
		if err != nil {
			return err
		}
		return output.YAML(c)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}
