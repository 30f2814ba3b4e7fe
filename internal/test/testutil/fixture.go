package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"dicesettle/internal/address"
	"dicesettle/internal/crypto"
	"dicesettle/internal/dice"
	"dicesettle/internal/events"
	"dicesettle/internal/ledger"
	"dicesettle/internal/protocol"
	"dicesettle/internal/runtime"
)

// Starting balances of harness accounts
const (
	LamportsPerSol = 1_000_000_000
	HouseAirdrop   = 1_000 * LamportsPerSol
	PlayerAirdrop  = 100 * LamportsPerSol
	VaultDeposit   = 500 * LamportsPerSol
)

// Keypair derives a deterministic keypair from name
func Keypair(t testing.TB, name string) *crypto.Keypair {
	seed := crypto.Hash([]byte(name))
	kp, err := crypto.KeypairFromSeed(seed[:])
	require.NoError(t, err)
	return kp
}

// Harness is an in-memory ledger with the dice program deployed, a funded
// house vault and a funded player.
type Harness struct {
	T           *testing.T
	Ctx         context.Context
	Store       ledger.Store
	Executor    *runtime.Executor
	Registry    *prometheus.Registry
	Broadcaster *events.Broadcaster
	Log         *TestLogHook

	House  *crypto.Keypair
	Player *crypto.Keypair
	Vault  address.Pubkey
}

// NewHarness creates a harness and funds the house vault
func NewHarness(t *testing.T) *Harness {
	return NewHarnessWithStore(t, ledger.NewMemoryStore(), Keypair(t, "house"), Keypair(t, "player"))
}

// NewHarnessWithStore is NewHarness over store. The house and player must not
// hold accounts on store yet.
func NewHarnessWithStore(t *testing.T, store ledger.Store, house, player *crypto.Keypair) *Harness {
	logger, hook := NewTestLogger(t)
	registry := prometheus.NewRegistry()
	broadcaster := events.NewBroadcaster(64)
	t.Cleanup(func() { broadcaster.Close() })

	h := &Harness{
		T:           t,
		Ctx:         NewTestContext(t),
		Store:       store,
		Registry:    registry,
		Broadcaster: broadcaster,
		Log:         hook,
		House:       house,
		Player:      player,
	}
	h.Executor = runtime.NewExecutor(store, []runtime.Program{dice.NewProgram()},
		runtime.WithLogger(logger),
		runtime.WithMetrics(runtime.NewMetrics(registry)),
		runtime.WithPublisher(broadcaster),
	)

	vault, err := dice.VaultAddress(h.House.PublicKey())
	require.NoError(t, err)
	h.Vault = vault.Address

	require.NoError(t, runtime.Airdrop(h.Ctx, store, h.House.PublicKey(), HouseAirdrop))
	require.NoError(t, runtime.Airdrop(h.Ctx, store, h.Player.PublicKey(), PlayerAirdrop))

	ix, err := dice.NewInitializeInstruction(h.House.PublicKey(), VaultDeposit)
	require.NoError(t, err)
	_, err = h.Submit(h.House, ix)
	require.NoError(t, err)

	return h
}

// Submit signs a transaction with the payer and any extra signers and executes it
func (h *Harness) Submit(payer *crypto.Keypair, ixs ...protocol.Instruction) (*runtime.Receipt, error) {
	return h.SubmitSigned(payer, nil, ixs...)
}

// SubmitSigned is Submit with additional signers
func (h *Harness) SubmitSigned(payer *crypto.Keypair, extra []*crypto.Keypair, ixs ...protocol.Instruction) (*runtime.Receipt, error) {
	tx := protocol.NewTransaction(payer.PublicKey(), ixs...)
	signers := []crypto.Signer{payer}
	for _, kp := range extra {
		signers = append(signers, kp)
	}
	require.NoError(h.T, tx.Sign(signers...))
	return h.Executor.Execute(h.Ctx, tx)
}

// Balance returns the lamports held by pk, zero if the account does not exist
func (h *Harness) Balance(pk address.Pubkey) uint64 {
	acct, err := h.Store.Get(h.Ctx, pk)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return 0
	}
	require.NoError(h.T, err)
	return acct.Lamports
}

// Exists reports whether pk has an account
func (h *Harness) Exists(pk address.Pubkey) bool {
	_, err := h.Store.Get(h.Ctx, pk)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return false
	}
	require.NoError(h.T, err)
	return true
}

// BetFor returns the bet the harness player would open with these arguments
func (h *Harness) BetFor(seed dice.Seed, roll uint8, amount uint64) *dice.Bet {
	derived, err := dice.BetAddress(h.Vault, seed)
	require.NoError(h.T, err)
	return &dice.Bet{
		Player: h.Player.PublicKey(),
		Seed:   seed,
		Amount: amount,
		Roll:   roll,
		Bump:   derived.Bump,
	}
}

// BetAddress returns the account of bet
func (h *Harness) BetAddress(bet *dice.Bet) address.Pubkey {
	derived, err := dice.BetAddress(h.Vault, bet.Seed)
	require.NoError(h.T, err)
	return derived.Address
}

// PlaceBet opens a bet for the harness player and returns it
func (h *Harness) PlaceBet(seed dice.Seed, roll uint8, amount uint64) *dice.Bet {
	ix, err := dice.NewPlaceBetInstruction(h.Player.PublicKey(), h.House.PublicKey(), dice.PlaceBet{
		Seed:   seed,
		Roll:   roll,
		Amount: amount,
	})
	require.NoError(h.T, err)
	_, err = h.Submit(h.Player, ix)
	require.NoError(h.T, err)
	return h.BetFor(seed, roll, amount)
}

// Sign returns the player's signature over the bet's canonical bytes
func (h *Harness) Sign(bet *dice.Bet) []byte {
	sig, err := h.Player.Sign(bet.ToSlice())
	require.NoError(h.T, err)
	return sig
}

// Resolve submits the two-instruction settlement transaction for bet
func (h *Harness) Resolve(bet *dice.Bet, sig []byte) (*runtime.Receipt, error) {
	ixs, err := dice.ResolveInstructions(h.House.PublicKey(), bet, sig)
	require.NoError(h.T, err)
	return h.Submit(h.House, ixs...)
}

// FindSeed searches seeds upward from start for a bet whose signature
// derives a roll accepted by want.
func (h *Harness) FindSeed(start uint64, roll uint8, amount uint64, want func(derived uint8) bool) (dice.Seed, uint8) {
	for i := start; i < start+10_000; i++ {
		seed := dice.NewSeed(i)
		derived := dice.DeriveRoll(h.Sign(h.BetFor(seed, roll, amount)))
		if want(derived) {
			return seed, derived
		}
	}
	h.T.Fatal("no seed found")
	return dice.Seed{}, 0
}
