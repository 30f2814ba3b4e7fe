// Package dice implements the dice program: bets committed by players,
// settled with a roll derived from an oracle's Ed25519 signature and paid
// out of a per-house vault.
package dice

import (
	"errors"
	"fmt"

	"dicesettle/internal/address"
	"dicesettle/internal/events"
	"dicesettle/internal/ledger"
	"dicesettle/internal/runtime"
)

// Program is the dice program as registered with the runtime
type Program struct{}

// NewProgram returns the dice program
func NewProgram() *Program {
	return &Program{}
}

// ID implements runtime.Program
func (p *Program) ID() address.Pubkey {
	return ProgramID
}

// Name implements runtime.Program
func (p *Program) Name() string {
	return "dice"
}

// Process implements runtime.Program
func (p *Program) Process(ictx *runtime.InvokeContext) error {
	ix, err := decodeInstruction(ictx.Data())
	if err != nil {
		return err
	}

	switch ix := ix.(type) {
	case Initialize:
		ictx.Logf("Instruction: Initialize")
		return p.initialize(ictx, ix)
	case PlaceBet:
		ictx.Logf("Instruction: PlaceBet")
		return p.placeBet(ictx, ix)
	case ResolveBet:
		ictx.Logf("Instruction: ResolveBet")
		return p.resolveBet(ictx, ix)
	default:
		return ErrInvalidInstruction
	}
}

func accounts(ictx *runtime.InvokeContext, n int) ([]address.Pubkey, error) {
	if ictx.NumAccounts() < n {
		return nil, runtime.ErrNotEnoughAccounts
	}
	keys := make([]address.Pubkey, n)
	for i := range keys {
		meta, err := ictx.AccountMeta(i)
		if err != nil {
			return nil, err
		}
		keys[i] = meta.Pubkey
	}
	return keys, nil
}

func requireSigner(ictx *runtime.InvokeContext, pk address.Pubkey) error {
	if !ictx.IsSigner(pk) {
		return fmt.Errorf("%w: %s", runtime.ErrMissingSignature, pk)
	}
	return nil
}

func bindVault(house, vault address.Pubkey) (address.Derived, error) {
	derived, err := VaultAddress(house)
	if err != nil || derived.Address != vault {
		return address.Derived{}, ErrVaultMismatch
	}
	return derived, nil
}

// initialize funds the house vault. Accounts: house, vault, system program.
func (p *Program) initialize(ictx *runtime.InvokeContext, ix Initialize) error {
	keys, err := accounts(ictx, 3)
	if err != nil {
		return err
	}
	house, vault, system := keys[0], keys[1], keys[2]

	if err := requireSigner(ictx, house); err != nil {
		return err
	}
	if _, err := bindVault(house, vault); err != nil {
		return err
	}
	if system != address.SystemProgramID {
		return ErrSystemProgram
	}
	if ix.Amount == 0 {
		return ErrInvalidAmount
	}

	if err := ictx.Transfer(house, vault, ix.Amount); err != nil {
		return err
	}

	ictx.Logf("vault %s funded with %d", vault, ix.Amount)
	ictx.Emit(events.KindVaultFunded, events.VaultFunded{House: house, Vault: vault, Amount: ix.Amount})
	return nil
}

// placeBet opens a bet account and escrows the amount. Accounts: player,
// house, vault, bet, system program.
func (p *Program) placeBet(ictx *runtime.InvokeContext, ix PlaceBet) error {
	keys, err := accounts(ictx, 5)
	if err != nil {
		return err
	}
	player, house, vault, betKey, system := keys[0], keys[1], keys[2], keys[3], keys[4]

	if err := requireSigner(ictx, player); err != nil {
		return err
	}
	if _, err := bindVault(house, vault); err != nil {
		return err
	}
	if system != address.SystemProgramID {
		return ErrSystemProgram
	}
	if ix.Roll < MinRoll || ix.Roll > MaxRoll {
		return ErrInvalidRoll
	}
	if ix.Amount == 0 {
		return ErrInvalidAmount
	}

	derived, err := BetAddress(vault, ix.Seed)
	if err != nil || derived.Address != betKey {
		return ErrBetAddressMismatch
	}

	bet := &Bet{
		Player: player,
		Seed:   ix.Seed,
		Amount: ix.Amount,
		Roll:   ix.Roll,
		Bump:   derived.Bump,
	}
	if err := ictx.CreateAccount(player, betKey, BetAccountSize, derived.Signer()); err != nil {
		return err
	}
	if err := ictx.WriteData(betKey, bet.MarshalAccount()); err != nil {
		return err
	}
	if err := ictx.Transfer(player, vault, ix.Amount); err != nil {
		return err
	}

	ictx.Logf("bet %s placed: roll %d amount %d", betKey, ix.Roll, ix.Amount)
	ictx.Emit(events.KindBetPlaced, events.BetPlaced{
		Bet:    betKey,
		Player: player,
		Vault:  vault,
		Seed:   ix.Seed.String(),
		Roll:   ix.Roll,
		Amount: ix.Amount,
	})
	return nil
}

// resolveBet settles a bet. Accounts: house, vault, player, bet,
// instructions sysvar, system program.
func (p *Program) resolveBet(ictx *runtime.InvokeContext, ix ResolveBet) error {
	keys, err := accounts(ictx, 6)
	if err != nil {
		return err
	}
	house, vaultKey, player, betKey, sysvar, system := keys[0], keys[1], keys[2], keys[3], keys[4], keys[5]

	if err := requireSigner(ictx, house); err != nil {
		return err
	}
	vault, err := bindVault(house, vaultKey)
	if err != nil {
		return err
	}
	if sysvar != address.InstructionsSysvarID {
		return ErrInstructionsSysvar
	}
	if system != address.SystemProgramID {
		return ErrSystemProgram
	}

	bet, err := loadBet(ictx, betKey)
	if err != nil {
		return err
	}
	if bet.Player != player {
		return ErrPlayerMismatch
	}
	derived, err := address.DeriveWithBump(ProgramID, bet.Bump, BetSeed, vaultKey[:], bet.Seed[:])
	if err != nil || derived.Address != betKey {
		return ErrBetAddressMismatch
	}

	if err := VerifyEd25519Signature(ictx.Instructions(), ix.Sig, bet); err != nil {
		return err
	}

	outcome, err := Settle(bet, ix.Sig)
	if err != nil {
		return err
	}
	if outcome.Won {
		if err := ictx.TransferSigned(vaultKey, player, outcome.Payout, vault.Signer()); err != nil {
			return err
		}
	}
	if err := ictx.CloseAccount(betKey, player); err != nil {
		return err
	}

	ictx.Logf("bet %s resolved: roll %d against %d, won %t, payout %d", betKey, outcome.Roll, bet.Roll, outcome.Won, outcome.Payout)
	ictx.Emit(events.KindBetResolved, events.BetResolved{
		Bet:    betKey,
		Player: player,
		Roll:   outcome.Roll,
		Won:    outcome.Won,
		Payout: outcome.Payout,
	})
	return nil
}

func loadBet(ictx *runtime.InvokeContext, key address.Pubkey) (*Bet, error) {
	acct, err := ictx.Load(key)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, ErrBetNotFound
	}
	if err != nil {
		return nil, err
	}
	return DecodeBetAccount(acct)
}

// DecodeBetAccount decodes a ledger account holding a bet
func DecodeBetAccount(acct *ledger.Account) (*Bet, error) {
	if acct.Owner != ProgramID {
		return nil, ErrBetNotFound
	}
	return UnmarshalBetAccount(acct.Data)
}
