// Package crypto provides the Ed25519 and hashing primitives used by the ledger.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"dicesettle/internal/address"

	"golang.org/x/crypto/ed25519"
)

// Key and signature sizes
const (
	PublicKeySize  = ed25519.PublicKeySize
	PrivateKeySize = ed25519.PrivateKeySize
	SignatureSize  = ed25519.SignatureSize
	SeedSize       = ed25519.SeedSize
	HashSize       = sha256.Size
)

var (
	// ErrInvalidKeypair is returned when a keypair has the wrong shape
	ErrInvalidKeypair = errors.New("crypto: invalid keypair")
)

// Keypair is an Ed25519 signing key
type Keypair struct {
	private ed25519.PrivateKey
	public  address.Pubkey
}

// GenerateKeypair creates a new random keypair
func GenerateKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating keypair: %w", err)
	}
	return keypairFromPrivate(priv)
}

// KeypairFromSeed deterministically derives a keypair from a 32-byte seed
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes", ErrInvalidKeypair, SeedSize)
	}
	return keypairFromPrivate(ed25519.NewKeyFromSeed(seed))
}

// KeypairFromBytes loads a 64-byte secret||public keypair
func KeypairFromBytes(b []byte) (*Keypair, error) {
	if len(b) != PrivateKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeypair, PrivateKeySize, len(b))
	}
	kp, err := KeypairFromSeed(b[:SeedSize])
	if err != nil {
		return nil, err
	}
	pub, err := address.FromBytes(b[SeedSize:])
	if err != nil {
		return nil, err
	}
	if !kp.public.Equal(pub) {
		return nil, fmt.Errorf("%w: public half does not match secret", ErrInvalidKeypair)
	}
	return kp, nil
}

// LoadKeypairFile reads a keypair stored as a JSON array of 64 bytes
func LoadKeypairFile(path string) (*Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading keypair file: %w", err)
	}

	var raw []byte
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, fmt.Errorf("parsing keypair file: %w", err)
	}
	for _, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: byte out of range", ErrInvalidKeypair)
		}
		raw = append(raw, byte(v))
	}
	return KeypairFromBytes(raw)
}

// SaveKeypairFile writes the keypair in the format read by LoadKeypairFile
func (k *Keypair) SaveKeypairFile(path string) error {
	ints := make([]int, len(k.private))
	for i, b := range k.private {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func keypairFromPrivate(priv ed25519.PrivateKey) (*Keypair, error) {
	pub, err := address.FromBytes(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	return &Keypair{private: priv, public: pub}, nil
}

// Sign signs message with the private key
func (k *Keypair) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(k.private, message), nil
}

// Verify checks a signature made by this keypair
func (k *Keypair) Verify(message, signature []byte) bool {
	return Verify(k.public, message, signature)
}

// PublicKey returns the keypair's address
func (k *Keypair) PublicKey() address.Pubkey {
	return k.public
}

// Verify checks an Ed25519 signature against a public key
func Verify(pub address.Pubkey, message, signature []byte) bool {
	if len(signature) != SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub[:]), message, signature)
}

// Hash returns the SHA-256 digest of the concatenated inputs
func Hash(data ...[]byte) [HashSize]byte {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

var _ Signer = (*Keypair)(nil)
