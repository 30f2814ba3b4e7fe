package address

import (
	"crypto/sha256"
	"errors"

	"filippo.io/edwards25519"
)

// Derivation limits
const (
	MaxSeeds      = 16
	MaxSeedLength = 32
)

const derivationMarker = "ProgramDerivedAddress"

var (
	// ErrMaxSeedLength is returned when a seed is longer than MaxSeedLength
	ErrMaxSeedLength = errors.New("address: seed too long")
	// ErrTooManySeeds is returned when more than MaxSeeds seeds are supplied
	ErrTooManySeeds = errors.New("address: too many seeds")
	// ErrOnCurve is returned when the derived hash is a valid Ed25519 point
	ErrOnCurve = errors.New("address: derived address lies on the ed25519 curve")
	// ErrNoViableBump is returned when no bump produces an off-curve address
	ErrNoViableBump = errors.New("address: unable to find a viable bump")
)

// IsOnCurve reports whether the address decodes to an Ed25519 point
func IsOnCurve(p Pubkey) bool {
	_, err := new(edwards25519.Point).SetBytes(p[:])
	return err == nil
}

// CreateProgramAddress hashes seeds and the owning program into an address
// that has no private key. Seeds must already include the bump.
func CreateProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, error) {
	if len(seeds) > MaxSeeds {
		return Pubkey{}, ErrTooManySeeds
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return Pubkey{}, ErrMaxSeedLength
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(derivationMarker))

	var pk Pubkey
	copy(pk[:], h.Sum(nil))
	if IsOnCurve(pk) {
		return Pubkey{}, ErrOnCurve
	}
	return pk, nil
}

// FindProgramAddress searches bumps from 255 downwards for the first
// off-curve address.
func FindProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return Pubkey{}, 0, ErrTooManySeeds
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump > 0; bump-- {
		withBump[len(seeds)] = []byte{uint8(bump)}
		pk, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return pk, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return Pubkey{}, 0, err
		}
	}
	return Pubkey{}, 0, ErrNoViableBump
}

// Derived is a program-derived address together with the seeds that produce
// it. It is the only way to obtain signer seeds for a keyless account.
type Derived struct {
	Address   Pubkey
	Bump      uint8
	ProgramID Pubkey
	seeds     [][]byte
}

// Derive finds the canonical derived address for seeds under programID
func Derive(programID Pubkey, seeds ...[]byte) (Derived, error) {
	pk, bump, err := FindProgramAddress(seeds, programID)
	if err != nil {
		return Derived{}, err
	}
	return Derived{Address: pk, Bump: bump, ProgramID: programID, seeds: cloneSeeds(seeds)}, nil
}

// DeriveWithBump recreates a derived address from a known bump
func DeriveWithBump(programID Pubkey, bump uint8, seeds ...[]byte) (Derived, error) {
	all := append(cloneSeeds(seeds), []byte{bump})
	pk, err := CreateProgramAddress(all, programID)
	if err != nil {
		return Derived{}, err
	}
	return Derived{Address: pk, Bump: bump, ProgramID: programID, seeds: cloneSeeds(seeds)}, nil
}

// Signer returns the seed set, bump included, that authorizes the derived
// account inside its owning program.
func (d Derived) Signer() SignerSeeds {
	all := append(cloneSeeds(d.seeds), []byte{d.Bump})
	return SignerSeeds{seeds: all}
}

// SignerSeeds is an opaque seed set presented to the runtime to sign for a
// derived account.
type SignerSeeds struct {
	seeds [][]byte
}

// Resolve recomputes the account the seeds sign for under programID
func (s SignerSeeds) Resolve(programID Pubkey) (Pubkey, error) {
	if len(s.seeds) == 0 {
		return Pubkey{}, ErrNoViableBump
	}
	return CreateProgramAddress(s.seeds, programID)
}

func cloneSeeds(seeds [][]byte) [][]byte {
	out := make([][]byte, len(seeds))
	for i, s := range seeds {
		out[i] = append([]byte(nil), s...)
	}
	return out
}
