// algorithm.go defines the signing algorithms supported by the gateway.
// The regulator accepts either RSA or EdDSA signatures; the algorithm is
// selected from the certificate's key type at signing time.
package crypto

// Algorithm specifies which signing algorithm to use for JWS signatures
type Algorithm string

const (
	// AlgorithmEd25519: EdDSA with Ed25519 curve (recommended for new certificates)
	AlgorithmEd25519 Algorithm = "EdDSA"

	// AlgorithmRSA: RS256 (RSA with SHA-256)
	AlgorithmRSA Algorithm = "RS256"
)
