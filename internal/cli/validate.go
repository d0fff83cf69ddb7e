package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/einvoice-networks/einvoice-gateway/internal/irn"
)

var validateCmd = &cobra.Command{
	Use:   "validate <irn>",
	Short: "Validate an IRN's format offline",
	Long: `Check that an invoice reference number is structurally valid:
{invoiceNumber}-{serviceId}-{dateStamp} with an 8-character alphanumeric
service id and an 8-digit date stamp.

This is a purely offline check. Content-hash and verification-code checks
need the registered record and run on the server.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result := irn.CheckFormat(args[0])
		if !result.Passed {
			return fmt.Errorf("invalid IRN: %s", result.Reason)
		}
		cmd.Printf("%s: format ok\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
