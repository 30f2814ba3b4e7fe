package dice

import (
	"math/bits"

	"github.com/holiman/uint256"

	"dicesettle/internal/crypto"
)

// HouseFeeBps is the share of a winning payout the house keeps, in basis points
const HouseFeeBps = 150

const bpsDenominator = 10_000

var (
	u128Mask = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
	rollSpan = uint256.NewInt(MaxRoll)
)

// DeriveRoll maps a signature to a roll in [1,100]. The two little-endian
// 128-bit halves of sha256(sig) are summed modulo 2^128; the roll is that
// sum modulo 100, plus one.
func DeriveRoll(sig []byte) uint8 {
	return rollFromDigest(crypto.Hash(sig))
}

func rollFromDigest(digest [crypto.HashSize]byte) uint8 {
	lower := u128LE(digest[:16])
	upper := u128LE(digest[16:])

	sum := new(uint256.Int).Add(lower, upper)
	sum.And(sum, u128Mask)
	sum.Mod(sum, rollSpan)
	return uint8(sum.Uint64()) + 1
}

// IsWin reports whether a bet with threshold betRoll wins against roll
func IsWin(betRoll, roll uint8) bool {
	return betRoll >= roll
}

// Payout returns amount less the house fee, rounded down
func Payout(amount uint64) (uint64, error) {
	hi, lo := bits.Mul64(amount, bpsDenominator-HouseFeeBps)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo / bpsDenominator, nil
}

// Outcome is the result of settling a bet
type Outcome struct {
	Roll   uint8
	Won    bool
	Payout uint64
}

// Settle derives the roll for sig and computes what the bet pays
func Settle(bet *Bet, sig []byte) (Outcome, error) {
	out := Outcome{Roll: DeriveRoll(sig)}
	out.Won = IsWin(bet.Roll, out.Roll)
	if !out.Won {
		return out, nil
	}

	payout, err := Payout(bet.Amount)
	if err != nil {
		return Outcome{}, err
	}
	out.Payout = payout
	return out, nil
}
