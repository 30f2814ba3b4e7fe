package crypto

import "dicesettle/internal/address"

// Signer defines the interface for message signing operations
type Signer interface {
	// Sign signs the provided message and returns the signature
	Sign(message []byte) ([]byte, error)

	// Verify verifies the signature against the message
	Verify(message, signature []byte) bool

	// PublicKey returns the signer's address
	PublicKey() address.Pubkey
}
