package cli

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/einvoice-networks/einvoice-gateway/internal/crypto"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a signing key pair",
	Long: `Generate a signing key pair for invoice certification.

The private key signs outgoing documents and acknowledgments.
The public key is served on the JWKS endpoint so the regulator can verify signatures.

Example:
  einvoice keygen --algorithm ed25519 --output-dir ./keys`,
	RunE: runKeygen,
}

var (
	keygenAlgorithm string
	keygenRSABits   int
	keygenOutputDir string
	keygenKeyID     string
)

func init() {
	rootCmd.AddCommand(keygenCmd)

	keygenCmd.Flags().StringVar(&keygenAlgorithm, "algorithm", "ed25519", "key algorithm (ed25519 or rsa)")
	keygenCmd.Flags().IntVar(&keygenRSABits, "size", 2048, "RSA key size in bits (ignored for ed25519)")
	keygenCmd.Flags().StringVar(&keygenOutputDir, "output-dir", "./keys", "directory for the generated key files")
	keygenCmd.Flags().StringVar(&keygenKeyID, "key-id", "", "key id for the published JWK (defaults to a generated UUID)")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	keyID := keygenKeyID
	if keyID == "" {
		keyID = uuid.NewString()
	}

	if err := os.MkdirAll(keygenOutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var privateKey any
	switch keygenAlgorithm {
	case "ed25519":
		key, err := crypto.GenerateEd25519KeyPair()
		if err != nil {
			return err
		}
		privateKey = key
	case "rsa":
		key, err := crypto.GenerateRSAKeyPair(keygenRSABits)
		if err != nil {
			return err
		}
		privateKey = key
	default:
		return fmt.Errorf("unsupported algorithm %q (want ed25519 or rsa)", keygenAlgorithm)
	}

	if err := crypto.SavePrivateKeyToPEMFile(privateKey, keygenOutputDir, "signing.key"); err != nil {
		return err
	}

	publicKey, err := crypto.PublicKeyFor(privateKey)
	if err != nil {
		return err
	}
	if err := crypto.SavePublicKeyToPEMFile(publicKey, keygenOutputDir, "signing.pub"); err != nil {
		return err
	}

	jwkKey, err := crypto.PublicKeyToJWK(publicKey, keyID)
	if err != nil {
		return err
	}
	if err := crypto.SaveKeyToJWKFile(jwkKey, keygenOutputDir, "signing.jwk", 0o644); err != nil {
		return err
	}

	cmd.Printf("generated %s key pair\n", keygenAlgorithm)
	cmd.Printf("  key id:      %s\n", keyID)
	cmd.Printf("  private key: %s/signing.key\n", keygenOutputDir)
	cmd.Printf("  public key:  %s/signing.pub\n", keygenOutputDir)
	cmd.Printf("  public JWK:  %s/signing.jwk\n", keygenOutputDir)
	cmd.Println("keep the private key secure; it is never published")
	return nil
}
