package dice

import (
	"encoding/binary"

	"dicesettle/internal/address"
	"dicesettle/internal/crypto"
	"dicesettle/internal/protocol"
	"dicesettle/internal/sigverify"
)

// ProgramID is the address of the dice program
var ProgramID = address.Pubkey(crypto.Hash([]byte("program:dice")))

// Seed prefixes of the program's derived accounts
var (
	VaultSeed = []byte("vault")
	BetSeed   = []byte("bet")
)

var (
	initializeDiscriminator = discriminator("global:initialize")
	placeBetDiscriminator   = discriminator("global:place_bet")
	resolveBetDiscriminator = discriminator("global:resolve_bet")
)

// VaultAddress derives the escrow vault of a house
func VaultAddress(house address.Pubkey) (address.Derived, error) {
	return address.Derive(ProgramID, VaultSeed, house[:])
}

// BetAddress derives the account of the bet with seed placed against vault
func BetAddress(vault address.Pubkey, seed Seed) (address.Derived, error) {
	return address.Derive(ProgramID, BetSeed, vault[:], seed[:])
}

// Initialize deposits Amount from the house into its vault
type Initialize struct {
	Amount uint64
}

// PlaceBet opens a bet
type PlaceBet struct {
	Seed   Seed
	Roll   uint8
	Amount uint64
}

// ResolveBet settles a bet with the oracle signature over its canonical bytes
type ResolveBet struct {
	Sig []byte
}

func (ix Initialize) encode() []byte {
	out := append([]byte(nil), initializeDiscriminator[:]...)
	return binary.LittleEndian.AppendUint64(out, ix.Amount)
}

func (ix PlaceBet) encode() []byte {
	out := append([]byte(nil), placeBetDiscriminator[:]...)
	out = append(out, ix.Seed[:]...)
	out = append(out, ix.Roll)
	return binary.LittleEndian.AppendUint64(out, ix.Amount)
}

func (ix ResolveBet) encode() []byte {
	out := append([]byte(nil), resolveBetDiscriminator[:]...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(ix.Sig)))
	return append(out, ix.Sig...)
}

// decodeInstruction parses instruction data into one of the instruction types
func decodeInstruction(data []byte) (any, error) {
	if len(data) < DiscriminatorSize {
		return nil, ErrInvalidInstruction
	}
	var disc [DiscriminatorSize]byte
	copy(disc[:], data)
	body := data[DiscriminatorSize:]

	switch disc {
	case initializeDiscriminator:
		if len(body) != 8 {
			return nil, ErrInvalidInstruction
		}
		return Initialize{Amount: binary.LittleEndian.Uint64(body)}, nil

	case placeBetDiscriminator:
		if len(body) != SeedSize+1+8 {
			return nil, ErrInvalidInstruction
		}
		var ix PlaceBet
		copy(ix.Seed[:], body[:SeedSize])
		ix.Roll = body[SeedSize]
		ix.Amount = binary.LittleEndian.Uint64(body[SeedSize+1:])
		return ix, nil

	case resolveBetDiscriminator:
		if len(body) < 4 {
			return nil, ErrInvalidInstruction
		}
		n := binary.LittleEndian.Uint32(body)
		if uint64(len(body)-4) != uint64(n) {
			return nil, ErrInvalidInstruction
		}
		return ResolveBet{Sig: append([]byte(nil), body[4:]...)}, nil
	}

	return nil, ErrInvalidInstruction
}

// NewInitializeInstruction builds an instruction funding the house vault
func NewInitializeInstruction(house address.Pubkey, amount uint64) (protocol.Instruction, error) {
	vault, err := VaultAddress(house)
	if err != nil {
		return protocol.Instruction{}, err
	}
	return protocol.Instruction{
		ProgramID: ProgramID,
		Accounts: []protocol.AccountMeta{
			protocol.NewAccountMeta(house, true, true),
			protocol.Writable(vault.Address),
			protocol.Readonly(address.SystemProgramID),
		},
		Data: Initialize{Amount: amount}.encode(),
	}, nil
}

// NewPlaceBetInstruction builds an instruction opening a bet against house
func NewPlaceBetInstruction(player, house address.Pubkey, args PlaceBet) (protocol.Instruction, error) {
	vault, err := VaultAddress(house)
	if err != nil {
		return protocol.Instruction{}, err
	}
	bet, err := BetAddress(vault.Address, args.Seed)
	if err != nil {
		return protocol.Instruction{}, err
	}
	return protocol.Instruction{
		ProgramID: ProgramID,
		Accounts: []protocol.AccountMeta{
			protocol.NewAccountMeta(player, true, true),
			protocol.Readonly(house),
			protocol.Writable(vault.Address),
			protocol.Writable(bet.Address),
			protocol.Readonly(address.SystemProgramID),
		},
		Data: args.encode(),
	}, nil
}

// NewResolveBetInstruction builds the settlement instruction for a bet
func NewResolveBetInstruction(house, player address.Pubkey, seed Seed, sig []byte) (protocol.Instruction, error) {
	vault, err := VaultAddress(house)
	if err != nil {
		return protocol.Instruction{}, err
	}
	bet, err := BetAddress(vault.Address, seed)
	if err != nil {
		return protocol.Instruction{}, err
	}
	return protocol.Instruction{
		ProgramID: ProgramID,
		Accounts: []protocol.AccountMeta{
			protocol.NewAccountMeta(house, true, true),
			protocol.Writable(vault.Address),
			protocol.Writable(player),
			protocol.Writable(bet.Address),
			protocol.Readonly(address.InstructionsSysvarID),
			protocol.Readonly(address.SystemProgramID),
		},
		Data: ResolveBet{Sig: sig}.encode(),
	}, nil
}

// ResolveInstructions returns the verification record and settlement
// instruction, in the order a resolve transaction must carry them.
func ResolveInstructions(house address.Pubkey, bet *Bet, sig []byte) ([]protocol.Instruction, error) {
	record, err := sigverify.NewInstruction(bet.Player, bet.ToSlice(), sig)
	if err != nil {
		return nil, err
	}
	resolve, err := NewResolveBetInstruction(house, bet.Player, bet.Seed, sig)
	if err != nil {
		return nil, err
	}
	return []protocol.Instruction{record, resolve}, nil
}
