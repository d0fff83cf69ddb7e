package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/einvoice-networks/einvoice-gateway/internal/crypto"
)

var csrCmd = &cobra.Command{
	Use:   "csr",
	Short: "Generate a certificate signing request for regulator onboarding",
	Long: `Generate a PEM-encoded certificate signing request.

The regulator's onboarding portal accepts the CSR and issues the signing
certificate that the gateway registers at startup. By default the CSR is
signed with an existing private key; pass --new-key to generate a fresh
RSA key alongside it.

Example:
  einvoice csr --key ./keys/signing.key --common-name "ACME Invoicing" --organization "ACME Corp" --country DE`,
	RunE: runCSR,
}

var (
	csrKeyPath string
	csrNewKey  bool
	csrKeyBits int
	csrOutput  string
	csrSubject crypto.CSRSubject
)

func init() {
	rootCmd.AddCommand(csrCmd)

	csrCmd.Flags().StringVar(&csrKeyPath, "key", "", "path to an existing private key PEM")
	csrCmd.Flags().BoolVar(&csrNewKey, "new-key", false, "generate a new RSA key for the CSR")
	csrCmd.Flags().IntVar(&csrKeyBits, "size", crypto.DefaultCSRKeySize, "RSA key size when --new-key is set")
	csrCmd.Flags().StringVar(&csrOutput, "output", "./request.csr", "output path for the CSR")
	csrCmd.Flags().StringVar(&csrSubject.CommonName, "common-name", "", "subject common name (required)")
	csrCmd.Flags().StringVar(&csrSubject.Organization, "organization", "", "subject organization")
	csrCmd.Flags().StringVar(&csrSubject.OrganizationalUnit, "organizational-unit", "", "subject organizational unit")
	csrCmd.Flags().StringVar(&csrSubject.Locality, "locality", "", "subject locality")
	csrCmd.Flags().StringVar(&csrSubject.Province, "province", "", "subject province")
	csrCmd.Flags().StringVar(&csrSubject.Country, "country", "", "subject country code")
	csrCmd.Flags().StringVar(&csrSubject.Email, "email", "", "subject email address")
}

func runCSR(cmd *cobra.Command, args []string) error {
	var csrPEM []byte

	switch {
	case csrNewKey:
		pem, privateKey, err := crypto.GenerateCSRWithNewKey(csrSubject, csrKeyBits)
		if err != nil {
			return err
		}
		csrPEM = pem

		keyDir := filepath.Dir(csrOutput)
		if err := crypto.SavePrivateKeyToPEMFile(privateKey, keyDir, "csr.key"); err != nil {
			return err
		}
		cmd.Printf("new private key: %s\n", filepath.Join(keyDir, "csr.key"))

	case csrKeyPath != "":
		privateKey, err := crypto.ReadPrivateKeyFromPEMFile(filepath.Dir(csrKeyPath), filepath.Base(csrKeyPath))
		if err != nil {
			return err
		}
		csrPEM, err = crypto.GenerateCSR(privateKey, csrSubject)
		if err != nil {
			return err
		}

	default:
		return fmt.Errorf("either --key or --new-key is required")
	}

	if err := os.WriteFile(csrOutput, csrPEM, 0o644); err != nil {
		return fmt.Errorf("failed to write CSR: %w", err)
	}

	cmd.Printf("CSR written to %s\n", csrOutput)
	return nil
}
