package dice_test

import (
	"math"
	"strconv"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicesettle/internal/dice"
	"dicesettle/internal/events"
	"dicesettle/internal/ledger"
	"dicesettle/internal/protocol"
	"dicesettle/internal/runtime"
	"dicesettle/internal/sigverify"
	"dicesettle/internal/test/testutil"
)

const betAmount = 1_000

var betRent = ledger.RentExemptMinimum(dice.BetAccountSize)

func requireInstructionError(t *testing.T, err error, index int, target error) {
	t.Helper()
	var ixErr *runtime.InstructionError
	require.ErrorAs(t, err, &ixErr)
	assert.Equal(t, index, ixErr.Index)
	assert.ErrorIs(t, err, target)
}

func TestInitializeFundsVault(t *testing.T) {
	h := testutil.NewHarness(t)
	assert.Equal(t, uint64(testutil.VaultDeposit), h.Balance(h.Vault))
	assert.Equal(t, uint64(testutil.HouseAirdrop-testutil.VaultDeposit), h.Balance(h.House.PublicKey()))

	t.Run("requires house signature", func(t *testing.T) {
		ix, err := dice.NewInitializeInstruction(h.House.PublicKey(), 1)
		require.NoError(t, err)
		ix.Accounts[0].IsSigner = false

		_, err = h.Submit(h.Player, ix)
		requireInstructionError(t, err, 0, runtime.ErrMissingSignature)
	})

	t.Run("zero amount", func(t *testing.T) {
		ix, err := dice.NewInitializeInstruction(h.House.PublicKey(), 0)
		require.NoError(t, err)
		_, err = h.Submit(h.House, ix)
		requireInstructionError(t, err, 0, dice.ErrInvalidAmount)
	})

	t.Run("vault of another house", func(t *testing.T) {
		ix, err := dice.NewInitializeInstruction(h.House.PublicKey(), 1)
		require.NoError(t, err)
		other, err := dice.VaultAddress(h.Player.PublicKey())
		require.NoError(t, err)
		ix.Accounts[1].Pubkey = other.Address

		_, err = h.Submit(h.House, ix)
		requireInstructionError(t, err, 0, dice.ErrVaultMismatch)
	})
}

func TestPlaceBet(t *testing.T) {
	h := testutil.NewHarness(t)
	playerBefore := h.Balance(h.Player.PublicKey())
	vaultBefore := h.Balance(h.Vault)

	sub, cancel := h.Broadcaster.Subscribe()
	defer cancel()

	bet := h.PlaceBet(dice.NewSeed(7), 60, betAmount)
	betKey := h.BetAddress(bet)

	acct, err := h.Store.Get(h.Ctx, betKey)
	require.NoError(t, err)
	assert.Equal(t, dice.ProgramID, acct.Owner)
	assert.Equal(t, betRent, acct.Lamports)

	stored, err := dice.DecodeBetAccount(acct)
	require.NoError(t, err)
	assert.Equal(t, bet, stored)

	assert.Equal(t, playerBefore-betAmount-betRent, h.Balance(h.Player.PublicKey()))
	assert.Equal(t, vaultBefore+betAmount, h.Balance(h.Vault))

	ev := <-sub
	assert.Equal(t, events.KindBetPlaced, ev.Kind)
	assert.Contains(t, string(ev.Data), `"seed":"7"`)
	assert.Equal(t, 1.0, promtest.ToFloat64(h.Executor.Metrics().BetsPlaced))
}

func TestPlaceBetRejects(t *testing.T) {
	h := testutil.NewHarness(t)
	h.PlaceBet(dice.NewSeed(1), 50, betAmount)

	tests := []struct {
		name    string
		args    dice.PlaceBet
		wantErr error
	}{
		{"roll zero", dice.PlaceBet{Seed: dice.NewSeed(2), Roll: 0, Amount: betAmount}, dice.ErrInvalidRoll},
		{"roll above hundred", dice.PlaceBet{Seed: dice.NewSeed(2), Roll: 101, Amount: betAmount}, dice.ErrInvalidRoll},
		{"zero amount", dice.PlaceBet{Seed: dice.NewSeed(2), Roll: 50, Amount: 0}, dice.ErrInvalidAmount},
		{"seed in use", dice.PlaceBet{Seed: dice.NewSeed(1), Roll: 50, Amount: betAmount}, runtime.ErrAccountInUse},
		{"amount above balance", dice.PlaceBet{Seed: dice.NewSeed(3), Roll: 50, Amount: math.MaxUint64}, runtime.ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := h.Balance(h.Player.PublicKey())
			ix, err := dice.NewPlaceBetInstruction(h.Player.PublicKey(), h.House.PublicKey(), tt.args)
			require.NoError(t, err)

			_, err = h.Submit(h.Player, ix)
			requireInstructionError(t, err, 0, tt.wantErr)
			assert.Equal(t, before, h.Balance(h.Player.PublicKey()))
		})
	}
}

func TestResolveBetWin(t *testing.T) {
	h := testutil.NewHarness(t)
	seed, derived := h.FindSeed(7, 60, betAmount, func(r uint8) bool { return r <= 60 })

	bet := h.PlaceBet(seed, 60, betAmount)
	betKey := h.BetAddress(bet)
	playerBefore := h.Balance(h.Player.PublicKey())
	vaultBefore := h.Balance(h.Vault)

	sub, cancel := h.Broadcaster.Subscribe()
	defer cancel()

	receipt, err := h.Resolve(bet, h.Sign(bet))
	require.NoError(t, err)
	assert.Equal(t, runtime.StatusCommitted, receipt.Status)

	assert.Equal(t, playerBefore+985+betRent, h.Balance(h.Player.PublicKey()))
	assert.Equal(t, vaultBefore-985, h.Balance(h.Vault))
	assert.False(t, h.Exists(betKey))

	require.Len(t, receipt.Events, 1)
	ev := <-sub
	assert.Equal(t, receipt.Events[0], ev)
	assert.Equal(t, events.KindBetResolved, ev.Kind)
	assert.JSONEq(t, `{"bet":"`+betKey.String()+`","player":"`+h.Player.PublicKey().String()+`","roll":`+
		strconv.Itoa(int(derived))+`,"won":true,"payout":985}`, string(ev.Data))

	assert.Equal(t, 1.0, promtest.ToFloat64(h.Executor.Metrics().BetsResolved.WithLabelValues("won")))
	assert.Equal(t, 985.0, promtest.ToFloat64(h.Executor.Metrics().PayoutLamports))
}

func TestResolveBetLoss(t *testing.T) {
	h := testutil.NewHarness(t)
	seed, _ := h.FindSeed(7, 60, betAmount, func(r uint8) bool { return r > 60 })

	bet := h.PlaceBet(seed, 60, betAmount)
	betKey := h.BetAddress(bet)
	playerBefore := h.Balance(h.Player.PublicKey())
	vaultBefore := h.Balance(h.Vault)

	receipt, err := h.Resolve(bet, h.Sign(bet))
	require.NoError(t, err)

	assert.Equal(t, playerBefore+betRent, h.Balance(h.Player.PublicKey()))
	assert.Equal(t, vaultBefore, h.Balance(h.Vault))
	assert.False(t, h.Exists(betKey))

	require.Len(t, receipt.Events, 1)
	assert.Contains(t, string(receipt.Events[0].Data), `"won":false,"payout":0`)
	assert.Equal(t, 1.0, promtest.ToFloat64(h.Executor.Metrics().BetsResolved.WithLabelValues("lost")))
}

func TestResolveBetTwice(t *testing.T) {
	h := testutil.NewHarness(t)
	bet := h.PlaceBet(dice.NewSeed(11), 50, betAmount)
	sig := h.Sign(bet)

	_, err := h.Resolve(bet, sig)
	require.NoError(t, err)
	playerAfter := h.Balance(h.Player.PublicKey())
	vaultAfter := h.Balance(h.Vault)

	_, err = h.Resolve(bet, sig)
	requireInstructionError(t, err, 1, dice.ErrBetNotFound)
	assert.Equal(t, playerAfter, h.Balance(h.Player.PublicKey()))
	assert.Equal(t, vaultAfter, h.Balance(h.Vault))
}

func TestResolveBetOverflowChangesNothing(t *testing.T) {
	h := testutil.NewHarness(t)
	amount := uint64(math.MaxUint64 / 2)
	require.NoError(t, runtime.Airdrop(h.Ctx, h.Store, h.Player.PublicKey(), amount))

	// A roll threshold of 100 wins against every derived roll
	bet := h.PlaceBet(dice.NewSeed(3), dice.MaxRoll, amount)
	betKey := h.BetAddress(bet)
	playerBefore := h.Balance(h.Player.PublicKey())
	vaultBefore := h.Balance(h.Vault)

	_, err := h.Resolve(bet, h.Sign(bet))
	requireInstructionError(t, err, 1, dice.ErrOverflow)

	assert.True(t, h.Exists(betKey))
	assert.Equal(t, playerBefore, h.Balance(h.Player.PublicKey()))
	assert.Equal(t, vaultBefore, h.Balance(h.Vault))
	assert.Equal(t, 1.0, promtest.ToFloat64(h.Executor.Metrics().InstructionErrors.WithLabelValues("Overflow")))
}

func TestResolveBetRejectsForgedSignature(t *testing.T) {
	h := testutil.NewHarness(t)
	bet := h.PlaceBet(dice.NewSeed(5), 50, betAmount)

	forged := h.Sign(bet)
	forged[0] ^= 1

	_, err := h.Resolve(bet, forged)
	requireInstructionError(t, err, 0, runtime.ErrPrecompileFailed)
	assert.ErrorIs(t, err, sigverify.ErrInvalidSignature)
	assert.True(t, h.Exists(h.BetAddress(bet)))
}

func TestResolveBetRejectsSignatureOfAnotherBet(t *testing.T) {
	h := testutil.NewHarness(t)
	betA := h.PlaceBet(dice.NewSeed(21), 50, betAmount)
	betB := h.PlaceBet(dice.NewSeed(22), 50, betAmount)
	sigA := h.Sign(betA)

	// A valid record for bet A paired with settlement of bet B
	record, err := sigverify.NewInstruction(betA.Player, betA.ToSlice(), sigA)
	require.NoError(t, err)
	resolve, err := dice.NewResolveBetInstruction(h.House.PublicKey(), betB.Player, betB.Seed, sigA)
	require.NoError(t, err)

	_, err = h.Submit(h.House, record, resolve)
	requireInstructionError(t, err, 1, dice.ErrMessageMismatch)
	assert.True(t, h.Exists(h.BetAddress(betB)))
}

func TestResolveBetRejectsSignatureByAnotherKey(t *testing.T) {
	h := testutil.NewHarness(t)
	bet := h.PlaceBet(dice.NewSeed(31), 50, betAmount)

	oracle := testutil.Keypair(t, "oracle")
	sig, err := oracle.Sign(bet.ToSlice())
	require.NoError(t, err)
	record, err := sigverify.NewInstruction(oracle.PublicKey(), bet.ToSlice(), sig)
	require.NoError(t, err)
	resolve, err := dice.NewResolveBetInstruction(h.House.PublicKey(), bet.Player, bet.Seed, sig)
	require.NoError(t, err)

	_, err = h.Submit(h.House, record, resolve)
	requireInstructionError(t, err, 1, dice.ErrSignerMismatch)
}

func TestResolveBetAccountBinding(t *testing.T) {
	h := testutil.NewHarness(t)
	bet := h.PlaceBet(dice.NewSeed(41), 50, betAmount)
	sig := h.Sign(bet)
	stranger := testutil.Keypair(t, "stranger").PublicKey()

	otherVault, err := dice.VaultAddress(stranger)
	require.NoError(t, err)
	otherBet, err := dice.BetAddress(h.Vault, dice.NewSeed(999))
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(ixs []protocol.Instruction) []protocol.Instruction
		wantErr error
		index   int
	}{
		{
			name: "house not signing",
			mutate: func(ixs []protocol.Instruction) []protocol.Instruction {
				ixs[1].Accounts[0].IsSigner = false
				return ixs
			},
			wantErr: runtime.ErrMissingSignature,
			index:   1,
		},
		{
			name: "vault of another house",
			mutate: func(ixs []protocol.Instruction) []protocol.Instruction {
				ixs[1].Accounts[1].Pubkey = otherVault.Address
				return ixs
			},
			wantErr: dice.ErrVaultMismatch,
			index:   1,
		},
		{
			name: "another player",
			mutate: func(ixs []protocol.Instruction) []protocol.Instruction {
				ixs[1].Accounts[2].Pubkey = stranger
				return ixs
			},
			wantErr: dice.ErrPlayerMismatch,
			index:   1,
		},
		{
			name: "missing bet",
			mutate: func(ixs []protocol.Instruction) []protocol.Instruction {
				ixs[1].Accounts[3].Pubkey = otherBet.Address
				return ixs
			},
			wantErr: dice.ErrBetNotFound,
			index:   1,
		},
		{
			name: "bet account owned by another program",
			mutate: func(ixs []protocol.Instruction) []protocol.Instruction {
				ixs[1].Accounts[3].Pubkey = h.Vault
				return ixs
			},
			wantErr: dice.ErrBetNotFound,
			index:   1,
		},
		{
			name: "wrong instructions sysvar",
			mutate: func(ixs []protocol.Instruction) []protocol.Instruction {
				ixs[1].Accounts[4].Pubkey = stranger
				return ixs
			},
			wantErr: dice.ErrInstructionsSysvar,
			index:   1,
		},
		{
			name: "wrong system program",
			mutate: func(ixs []protocol.Instruction) []protocol.Instruction {
				ixs[1].Accounts[5].Pubkey = stranger
				return ixs
			},
			wantErr: dice.ErrSystemProgram,
			index:   1,
		},
		{
			name: "missing accounts",
			mutate: func(ixs []protocol.Instruction) []protocol.Instruction {
				ixs[1].Accounts = ixs[1].Accounts[:5]
				return ixs
			},
			wantErr: runtime.ErrNotEnoughAccounts,
			index:   1,
		},
		{
			name: "record after settlement",
			mutate: func(ixs []protocol.Instruction) []protocol.Instruction {
				return []protocol.Instruction{ixs[1], ixs[0]}
			},
			wantErr: dice.ErrRecordMissing,
			index:   0,
		},
		{
			name: "record carries accounts",
			mutate: func(ixs []protocol.Instruction) []protocol.Instruction {
				ixs[0].Accounts = []protocol.AccountMeta{protocol.Readonly(bet.Player)}
				return ixs
			},
			wantErr: dice.ErrUnexpectedAccounts,
			index:   1,
		},
		{
			name: "settlement without record",
			mutate: func(ixs []protocol.Instruction) []protocol.Instruction {
				return ixs[1:]
			},
			wantErr: dice.ErrRecordMissing,
			index:   0,
		},
		{
			name: "garbage instruction data",
			mutate: func(ixs []protocol.Instruction) []protocol.Instruction {
				ixs[1].Data = []byte{1, 2, 3}
				return ixs
			},
			wantErr: dice.ErrInvalidInstruction,
			index:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ixs, err := dice.ResolveInstructions(h.House.PublicKey(), bet, sig)
			require.NoError(t, err)

			_, err = h.Submit(h.House, tt.mutate(ixs)...)
			requireInstructionError(t, err, tt.index, tt.wantErr)
			assert.True(t, h.Exists(h.BetAddress(bet)))
		})
	}
}

func TestVaultCannotBeDrainedWithoutProgram(t *testing.T) {
	h := testutil.NewHarness(t)
	before := h.Balance(h.Vault)

	ix := runtime.NewTransferInstruction(h.Vault, h.House.PublicKey(), 1)
	ix.Accounts[0].IsSigner = false

	_, err := h.Submit(h.House, ix)
	requireInstructionError(t, err, 0, runtime.ErrMissingSignature)
	assert.Equal(t, before, h.Balance(h.Vault))
}
