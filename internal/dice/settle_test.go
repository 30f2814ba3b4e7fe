package dice

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicesettle/internal/crypto"
)

func digestWithHalves(lower, upper []byte) [crypto.HashSize]byte {
	var d [crypto.HashSize]byte
	copy(d[:16], lower)
	copy(d[16:], upper)
	return d
}

func le128(v uint64) []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func TestRollFromDigest(t *testing.T) {
	max128 := bytes.Repeat([]byte{0xFF}, 16)

	tests := []struct {
		name   string
		digest [crypto.HashSize]byte
		want   uint8
	}{
		{"all zero", [crypto.HashSize]byte{}, 1},
		{"all ones", digestWithHalves(max128, max128), 55},
		{"lower one", digestWithHalves(le128(1), nil), 2},
		{"upper one", digestWithHalves(nil, le128(1)), 2},
		{"top of range", digestWithHalves(le128(99), nil), 100},
		{"wraps at hundred", digestWithHalves(le128(100), nil), 1},
		{"halves are added", digestWithHalves(le128(40), le128(4)), 45},
		{"sum wraps at 2^128", digestWithHalves(max128, le128(1)), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rollFromDigest(tt.digest))
		})
	}
}

func TestDeriveRollRange(t *testing.T) {
	seen := make(map[uint8]bool)
	for i := 0; i < 5000; i++ {
		sig := make([]byte, 64)
		binary.LittleEndian.PutUint64(sig, uint64(i))
		roll := DeriveRoll(sig)
		require.GreaterOrEqual(t, roll, uint8(MinRoll))
		require.LessOrEqual(t, roll, uint8(MaxRoll))
		seen[roll] = true
	}
	assert.Len(t, seen, MaxRoll)
}

func TestDeriveRollIsPure(t *testing.T) {
	sig := bytes.Repeat([]byte{7}, 64)
	first := DeriveRoll(sig)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, DeriveRoll(append([]byte(nil), sig...)))
	}
}

func TestIsWin(t *testing.T) {
	assert.True(t, IsWin(50, 50))
	assert.True(t, IsWin(50, 1))
	assert.False(t, IsWin(50, 51))
	assert.True(t, IsWin(100, 100))
	assert.False(t, IsWin(1, 2))
}

func TestPayout(t *testing.T) {
	tests := []struct {
		amount  uint64
		want    uint64
		wantErr error
	}{
		{amount: 10_000, want: 9_850},
		{amount: 1_000, want: 985},
		{amount: 3, want: 2},
		{amount: 1, want: 0},
		{amount: 0, want: 0},
		{amount: math.MaxUint64 / 9_850, want: (math.MaxUint64 / 9_850) * 9_850 / 10_000},
		{amount: math.MaxUint64/9_850 + 1, wantErr: ErrOverflow},
		{amount: math.MaxUint64, wantErr: ErrOverflow},
	}

	for _, tt := range tests {
		got, err := Payout(tt.amount)
		if tt.wantErr != nil {
			assert.ErrorIs(t, err, tt.wantErr, "amount %d", tt.amount)
			continue
		}
		require.NoError(t, err, "amount %d", tt.amount)
		assert.Equal(t, tt.want, got, "amount %d", tt.amount)
	}
}

// sigWithRoll finds a byte string whose derived roll is want
func sigWithRoll(t *testing.T, want uint8) []byte {
	for i := uint64(0); i < 100_000; i++ {
		sig := make([]byte, 64)
		binary.LittleEndian.PutUint64(sig, i)
		if DeriveRoll(sig) == want {
			return sig
		}
	}
	t.Fatalf("no signature derives roll %d", want)
	return nil
}

func TestSettle(t *testing.T) {
	bet := &Bet{Seed: NewSeed(7), Amount: 1_000, Roll: 60}

	t.Run("win pays amount less fee", func(t *testing.T) {
		out, err := Settle(bet, sigWithRoll(t, 45))
		require.NoError(t, err)
		assert.Equal(t, Outcome{Roll: 45, Won: true, Payout: 985}, out)
	})

	t.Run("threshold is inclusive", func(t *testing.T) {
		out, err := Settle(bet, sigWithRoll(t, 60))
		require.NoError(t, err)
		assert.True(t, out.Won)
	})

	t.Run("loss pays nothing", func(t *testing.T) {
		out, err := Settle(bet, sigWithRoll(t, 61))
		require.NoError(t, err)
		assert.Equal(t, Outcome{Roll: 61}, out)
	})

	t.Run("overflow on win", func(t *testing.T) {
		huge := &Bet{Amount: math.MaxUint64, Roll: MaxRoll}
		_, err := Settle(huge, sigWithRoll(t, 10))
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("no overflow on loss", func(t *testing.T) {
		huge := &Bet{Amount: math.MaxUint64, Roll: 1}
		out, err := Settle(huge, sigWithRoll(t, 2))
		require.NoError(t, err)
		assert.False(t, out.Won)
	})
}
