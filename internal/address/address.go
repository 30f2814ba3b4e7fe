// Package address provides ledger account addresses and program-derived addresses.
package address

import (
	"bytes"
	"fmt"

	"github.com/decred/base58"
)

// Size is the length of an address in bytes
const Size = 32

// Pubkey identifies an account on the ledger. For wallet accounts it is the
// Ed25519 public key; for derived accounts it is a point off the curve.
type Pubkey [Size]byte

// Well-known platform addresses
var (
	SystemProgramID      = MustFromBase58("11111111111111111111111111111111")
	Ed25519ProgramID     = MustFromBase58("Ed25519SigVerify111111111111111111111111111")
	InstructionsSysvarID = MustFromBase58("Sysvar1nstructions1111111111111111111111111")

	zeroKey Pubkey
)

// FromBytes copies b into a Pubkey
func FromBytes(b []byte) (Pubkey, error) {
	var pk Pubkey
	if len(b) != Size {
		return pk, fmt.Errorf("invalid address length: %d", len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// FromBase58 decodes a base58 address string
func FromBase58(s string) (Pubkey, error) {
	decoded := base58.Decode(s)
	if len(decoded) == 0 && s != "" {
		return Pubkey{}, fmt.Errorf("invalid base58 address %q", s)
	}
	return FromBytes(decoded)
}

// MustFromBase58 is like FromBase58 but panics on error
func MustFromBase58(s string) Pubkey {
	pk, err := FromBase58(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// String returns the base58 form of the address
func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

// Bytes returns a copy of the raw address bytes
func (p Pubkey) Bytes() []byte {
	return append([]byte(nil), p[:]...)
}

// IsZero reports whether the address is all zeroes
func (p Pubkey) IsZero() bool {
	return p == zeroKey
}

// Equal compares two addresses
func (p Pubkey) Equal(other Pubkey) bool {
	return bytes.Equal(p[:], other[:])
}

// MarshalText implements encoding.TextMarshaler
func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *Pubkey) UnmarshalText(text []byte) error {
	pk, err := FromBase58(string(text))
	if err != nil {
		return err
	}
	*p = pk
	return nil
}
