package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/gagps/ecommerce-cx/cli/pkg/output"
	"github.com/gagps/ecommerce-cx/common/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the products and orders database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(mg *database.Migrator) error {
			if err := mg.Up(); err != nil {
				return err
			}
			output.Success("Migrations applied")
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, _ := cmd.Flags().GetInt("steps")
		return withMigrator(func(mg *database.Migrator) error {
			if err := mg.Down(steps); err != nil {
				return err
			}
			output.Success("Rolled back %d migration(s)", steps)
			return nil
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(mg *database.Migrator) error {
			v, dirty, err := mg.Version()
			if err != nil {
				return err
			}
			view := struct {
				Version uint `json:"version" yaml:"version"`
				Dirty   bool `json:"dirty" yaml:"dirty"`
			}{v, dirty}
			return output.Print(outputFormat, view, func() *output.Table {
				table := output.NewTable([]string{"VERSION", "DIRTY"})
				table.AddRow([]string{fmt.Sprint(v), fmt.Sprint(dirty)})
				return table
			})
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)

	migrateDownCmd.Flags().Int("steps", 1, "number of migrations to roll back")
}

func withMigrator(fn func(*database.Migrator) error) error {
	c, err := loadedConfig()
	if err != nil {
		return err
	}
	mg, err := database.NewMigrator(c.Database.Postgres.DSN(), slog.Default())
	if err != nil {
		return err
	}
	defer mg.Close()
	return fn(mg)
}
