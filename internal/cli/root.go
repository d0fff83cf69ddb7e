// Package cli implements the einvoice command line tooling: key
// generation, CSR creation for regulator onboarding, and offline IRN
// checks.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/einvoice-networks/einvoice-gateway/internal/version"
)

var rootCmd = &cobra.Command{
	Use:               "einvoice",
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	Short:             "e-invoice gateway tooling",
	Long:              `Operator tooling for the e-invoice certification gateway: signing key generation, CSR creation for regulator onboarding, and offline IRN checks`,
}

func Execute() {
	v := version.Get()
	rootCmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
