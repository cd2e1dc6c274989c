package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gagps/ecommerce-cx/cli/internal/importer"
	"github.com/gagps/ecommerce-cx/cli/pkg/output"
)

var invoiceCmd = &cobra.Command{
	Use:   "invoice",
	Short: "Work with invoice uploads",
}

var invoiceImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Upload an invoice file and follow its processing status",
	Long: `Opens a socket to the invoices gateway, requests an upload slot, uploads the
file to the returned URL and prints every status pushed for it until the
invoice is processed, fails validation or --timeout elapses.`,
	Example: `  ecx invoice import invoice.json --gateway ws://localhost:8080/ws`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gatewayURL, _ := cmd.Flags().GetString("gateway")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read invoice file: %w", err)
		}

		parent := cmd.Context()
		if parent == nil {
			parent = context.Background()
		}
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()

		quiet := outputFormat != output.FormatTable
		res, err := importer.New(nil).Import(ctx, gatewayURL, data,
			func(s importer.Slot) {
				if !quiet {
					output.Info("Upload slot %s issued (expires %s)", s.TransactionKey, s.ExpiresAt.Format(time.RFC3339))
				}
			},
			func(m importer.StatusMessage) {
				if !quiet {
					output.Info("%s  %s", time.Now().Format(time.TimeOnly), m.Status)
				}
			})
		if errors.Is(err, importer.ErrTimeout) {
			output.Warn("No final status after %s", timeout)
		}
		if err != nil {
			return err
		}

		if quiet {
			return output.Print(outputFormat, res, nil)
		}
		if res.Final == importer.StatusProcessed {
			output.Success("Invoice %s processed", res.Key)
			return nil
		}
		output.Error("Invoice %s failed validation", res.Key)
		return fmt.Errorf("invoice %s: %s", res.Key, res.Final)
	},
}

func init() {
	rootCmd.AddCommand(invoiceCmd)
	invoiceCmd.AddCommand(invoiceImportCmd)

	invoiceImportCmd.Flags().String("gateway", "ws://localhost:8080/ws", "invoices gateway websocket URL")
	invoiceImportCmd.Flags().Duration("timeout", 2*time.Minute, "how long to wait for a final status")
}
