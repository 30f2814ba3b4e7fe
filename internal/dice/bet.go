package dice

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"dicesettle/internal/address"
	"dicesettle/internal/crypto"
)

// Bet layout sizes
const (
	SeedSize          = 16
	BetSize           = address.Size + SeedSize + 8 + 1 + 1
	DiscriminatorSize = 8
	BetAccountSize    = DiscriminatorSize + BetSize
)

// Roll bounds
const (
	MinRoll = 1
	MaxRoll = 100
)

var (
	errSeedRange = errors.New("seed does not fit in 128 bits")

	betDiscriminator = discriminator("account:Bet")
)

func discriminator(name string) [DiscriminatorSize]byte {
	sum := crypto.Hash([]byte(name))
	var d [DiscriminatorSize]byte
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// Seed is an unsigned 128-bit per-bet nonce, stored little-endian
type Seed [SeedSize]byte

// NewSeed returns the seed with value v
func NewSeed(v uint64) Seed {
	var s Seed
	binary.LittleEndian.PutUint64(s[:8], v)
	return s
}

// ParseSeed parses a decimal seed
func ParseSeed(str string) (Seed, error) {
	v, err := uint256.FromDecimal(str)
	if err != nil {
		return Seed{}, fmt.Errorf("invalid seed %q: %w", str, err)
	}
	return SeedFromUint256(v)
}

// SeedFromUint256 narrows v to a seed
func SeedFromUint256(v *uint256.Int) (Seed, error) {
	if v.BitLen() > SeedSize*8 {
		return Seed{}, errSeedRange
	}
	be := v.Bytes32()
	var s Seed
	for i := 0; i < SeedSize; i++ {
		s[i] = be[31-i]
	}
	return s, nil
}

// Uint256 widens the seed
func (s Seed) Uint256() *uint256.Int {
	return u128LE(s[:])
}

// String returns the decimal value
func (s Seed) String() string {
	return s.Uint256().Dec()
}

// MarshalText implements encoding.TextMarshaler
func (s Seed) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Seed) UnmarshalText(text []byte) error {
	v, err := ParseSeed(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// u128LE reads a little-endian 128-bit value
func u128LE(b []byte) *uint256.Int {
	be := make([]byte, len(b))
	for i := range b {
		be[len(b)-1-i] = b[i]
	}
	return new(uint256.Int).SetBytes(be)
}

// Bet is a player's committed wager. It never changes after creation.
type Bet struct {
	Player address.Pubkey `json:"player"`
	Seed   Seed           `json:"seed"`
	Amount uint64         `json:"amount"`
	Roll   uint8          `json:"roll"`
	Bump   uint8          `json:"bump"`
}

// ToSlice returns the canonical bytes of the bet, the exact message the
// player signs.
func (b *Bet) ToSlice() []byte {
	out := make([]byte, 0, BetSize)
	out = append(out, b.Player[:]...)
	out = append(out, b.Seed[:]...)
	out = binary.LittleEndian.AppendUint64(out, b.Amount)
	out = append(out, b.Roll, b.Bump)
	return out
}

// MarshalAccount encodes the bet as account data
func (b *Bet) MarshalAccount() []byte {
	out := make([]byte, 0, BetAccountSize)
	out = append(out, betDiscriminator[:]...)
	return append(out, b.ToSlice()...)
}

// UnmarshalBetAccount decodes account data written by MarshalAccount
func UnmarshalBetAccount(data []byte) (*Bet, error) {
	if len(data) != BetAccountSize || !bytes.Equal(data[:DiscriminatorSize], betDiscriminator[:]) {
		return nil, ErrInvalidBetData
	}
	data = data[DiscriminatorSize:]

	var b Bet
	copy(b.Player[:], data[:address.Size])
	data = data[address.Size:]
	copy(b.Seed[:], data[:SeedSize])
	data = data[SeedSize:]
	b.Amount = binary.LittleEndian.Uint64(data)
	b.Roll = data[8]
	b.Bump = data[9]
	return &b, nil
}
