package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gagps/ecommerce-cx/common/config"
	"github.com/gagps/ecommerce-cx/common/logging"
)

var (
	cfgFile      string
	outputFormat string
	cfg          *config.Config
	cfgErr       error
)

var rootCmd = &cobra.Command{
	Use:   "ecx",
	Short: "ecommerce-cx operator CLI",
	Long: `ecx is the operator command-line interface for the ecommerce-cx services.

Apply database migrations, inspect the invoice dead-letter queue, print the
effective configuration and push invoices through the upload gateway.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $ECX_CONFIG_DIR/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json, yaml")
}

func initConfig() {
	cfg, cfgErr = config.Load(cfgFile)

	level := slog.LevelWarn
	if cfg != nil && cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	// stdout belongs to command output.
	logging.SetDefault(logging.NewWithWriter(os.Stderr, level, "text"))
}

// loadedConfig returns the configuration or the error that prevented loading it.
func loadedConfig() (*config.Config, error) {
	if cfgErr != nil {
		return nil, fmt.Errorf("load config: %w", cfgErr)
	}
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	return cfg, nil
}
